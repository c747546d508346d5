package points

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	model "github.com/glkeru/loyalty/userpoints/internal/models"
	"github.com/segmentio/kafka-go"
)

const (
	ChargesTopic = "points_charges"
	EventsTopic  = "points_events"
	groupID      = "points_loyalty"
)

// Команды начисления
type KafkaCharges struct {
	reader *kafka.Reader
}

func NewChargesReader(addr string) *KafkaCharges {
	kafkaconfig := kafka.ReaderConfig{
		Brokers: []string{addr},
		Topic:   ChargesTopic,
		GroupID: groupID,
	}
	return &KafkaCharges{kafka.NewReader(kafkaconfig)}
}

// offset фиксируется только после обработки команды
func (k *KafkaCharges) ReadCommand(ctx context.Context) (model.QueueMessage, error) {
	msg, err := k.reader.FetchMessage(ctx)
	if err != nil {
		return model.QueueMessage{}, err
	}
	return model.QueueMessage{
		Payload: msg.Value,
		Ack: func() error {
			return k.reader.CommitMessages(context.Background(), msg)
		},
	}, nil
}

func (k *KafkaCharges) Close() error {
	return k.reader.Close()
}

// События о транзакциях
type KafkaEvents struct {
	writer *kafka.Writer
}

func NewEventsWriter(addr string) *KafkaEvents {
	return &KafkaEvents{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(addr),
			Topic:        EventsTopic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// ключ - id пользователя: события одного пользователя попадают в одну партицию
func eventMessage(event model.PointEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(event.UserID, 10)),
		Value: data,
	}, nil
}

func (k *KafkaEvents) Publish(ctx context.Context, event model.PointEvent) error {
	msg, err := eventMessage(event)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaEvents) Close() error {
	return k.writer.Close()
}
