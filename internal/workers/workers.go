package points

import (
	"context"
	"errors"
	"fmt"
	"sync"

	interf "github.com/glkeru/loyalty/userpoints/internal/interfaces"
	model "github.com/glkeru/loyalty/userpoints/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var commandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "points_commands_total",
		Help: "Processed queue commands",
	},
	[]string{"worker", "result"},
)

type CommandHandler interface {
	HandleCommand(ctx context.Context, typeTnx model.TransactionType, payload []byte) (model.CommandConfirm, error)
}

// CommandWorker reads commands one by one and handles up to count of them concurrently.
// A command that has been read is always handled to the end, even after shutdown started.
type CommandWorker struct {
	name    string
	typeTnx model.TransactionType
	reader  interf.CommandReader
	handler CommandHandler
	count   int
	logger  *zap.Logger
	done    chan struct{}
}

func newCommandWorker(name string, typeTnx model.TransactionType, reader interf.CommandReader, handler CommandHandler, count int, logger *zap.Logger) *CommandWorker {
	if count < 1 {
		count = 1
	}
	return &CommandWorker{
		name:    name,
		typeTnx: typeTnx,
		reader:  reader,
		handler: handler,
		count:   count,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Начисления (kafka)
func NewChargeWorker(reader interf.CommandReader, handler CommandHandler, count int, logger *zap.Logger) *CommandWorker {
	return newCommandWorker("charges", model.CHARGE, reader, handler, count, logger)
}

// Списания (rabbitmq)
func NewUseWorker(reader interf.CommandReader, handler CommandHandler, count int, logger *zap.Logger) *CommandWorker {
	return newCommandWorker("uses", model.USE, reader, handler, count, logger)
}

func (w *CommandWorker) Start(ctx context.Context) error {
	defer close(w.done)

	wg := &sync.WaitGroup{}
	defer wg.Wait()
	semaphore := make(chan struct{}, w.count)

	w.logger.Info("worker is running", zap.String("worker", w.name), zap.Int("count", w.count))
	for {
		msg, err := w.reader.ReadCommand(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, model.ErrQueueClosed) {
				w.logger.Warn("command queue is closed", zap.String("worker", w.name))
				return nil
			}
			return fmt.Errorf("%s worker: read command: %w", w.name, err)
		}

		semaphore <- struct{}{}
		wg.Add(1)
		go func(msg model.QueueMessage) {
			defer wg.Done()
			defer func() { <-semaphore }()
			w.process(context.WithoutCancel(ctx), msg)
		}(msg)
	}
}

func (w *CommandWorker) process(ctx context.Context, msg model.QueueMessage) {
	defer w.ack(msg)

	confirm, err := w.handler.HandleCommand(ctx, w.typeTnx, msg.Payload)
	if err != nil {
		commandsTotal.WithLabelValues(w.name, "error").Inc()
		w.logger.Error("command failed",
			zap.String("worker", w.name),
			zap.String("command", confirm.CommandID),
			zap.Error(err),
		)
	} else {
		commandsTotal.WithLabelValues(w.name, "ok").Inc()
	}

	confirmer, ok := w.reader.(interf.CommandConfirmer)
	if !ok || confirm.CommandID == "" {
		return
	}
	if err := confirmer.Confirm(ctx, confirm); err != nil {
		w.logger.Error("command confirm",
			zap.String("worker", w.name),
			zap.String("command", confirm.CommandID),
			zap.Error(err),
		)
	}
}

// команда подтверждается и при ошибке обработки
func (w *CommandWorker) ack(msg model.QueueMessage) {
	if msg.Ack == nil {
		return
	}
	if err := msg.Ack(); err != nil {
		w.logger.Error("command ack", zap.String("worker", w.name), zap.Error(err))
	}
}

// Stop waits for the handled commands and closes the queue.
func (w *CommandWorker) Stop(ctx context.Context) error {
	select {
	case <-w.done:
	case <-ctx.Done():
		w.logger.Warn("worker stop timeout", zap.String("worker", w.name))
	}
	return w.reader.Close()
}
