package points

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	interf "github.com/glkeru/loyalty/userpoints/internal/interfaces"
	model "github.com/glkeru/loyalty/userpoints/internal/models"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("points")

// PointsService serializes charge/use per user: read, check and write of a balance
// together with the history record happen while the user's lock is held.
// Different users never wait for each other.
type PointsService struct {
	logger    *zap.Logger
	accounts  interf.AccountStorage
	history   interf.HistoryStorage
	cache     interf.CacheStorage   // может быть nil
	publisher interf.EventPublisher // может быть nil
	ledger    interf.LedgerStorage  // nil: баланс и история пишутся раздельно
	locks     *accountLocks
}

const rollbackAttempts = 3

func NewPointService(logger *zap.Logger, accounts interf.AccountStorage, history interf.HistoryStorage, cache interf.CacheStorage, publisher interf.EventPublisher) *PointsService {
	ledger, _ := accounts.(interf.LedgerStorage)
	return &PointsService{
		logger:    logger,
		accounts:  accounts,
		history:   history,
		cache:     cache,
		publisher: publisher,
		ledger:    ledger,
		locks:     newAccountLocks(),
	}
}

// ParseUserID accepts a decimal positive int64.
func ParseUserID(id string) (int64, error) {
	userID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidUserID, id)
	}
	return userID, nil
}

// баланс
func (p *PointsService) GetPoint(ctx context.Context, id string) (model.UserPoint, error) {
	ctx, span := tracer.Start(ctx, "PointsService.GetPoint")
	defer span.End()

	userID, err := ParseUserID(id)
	if err != nil {
		return model.UserPoint{}, p.failed(span, "get", err)
	}
	span.SetAttributes(attribute.Int64("user", userID))

	// cache
	if p.cache != nil {
		balance, err := p.cache.GetBalance(ctx, userID)
		if err == nil {
			operationsTotal.WithLabelValues("get", "ok").Inc()
			return balance, nil
		}
	}
	// database
	balance, err := p.accounts.Get(ctx, userID)
	if err != nil {
		return model.UserPoint{}, p.failed(span, "get", err)
	}
	if p.cache != nil {
		if err := p.cache.SetBalanceIfAbsent(ctx, balance); err != nil {
			p.logger.Warn("cache set", zap.Int64("user", userID), zap.Error(err))
		}
	}
	operationsTotal.WithLabelValues("get", "ok").Inc()
	return balance, nil
}

// история
func (p *PointsService) GetHistory(ctx context.Context, id string) ([]model.PointHistory, error) {
	ctx, span := tracer.Start(ctx, "PointsService.GetHistory")
	defer span.End()

	userID, err := ParseUserID(id)
	if err != nil {
		return nil, p.failed(span, "history", err)
	}
	span.SetAttributes(attribute.Int64("user", userID))

	history, err := p.history.ListByUser(ctx, userID)
	if err != nil {
		return nil, p.failed(span, "history", err)
	}
	operationsTotal.WithLabelValues("history", "ok").Inc()
	return history, nil
}

// начисление
func (p *PointsService) Charge(ctx context.Context, id string, amount int64) (model.UserPoint, error) {
	ctx, span := tracer.Start(ctx, "PointsService.Charge")
	defer span.End()

	userID, err := ParseUserID(id)
	if err != nil {
		return model.UserPoint{}, p.failed(span, "charge", err)
	}
	if amount <= 0 {
		return model.UserPoint{}, p.failed(span, "charge", fmt.Errorf("%w: %d", model.ErrInvalidAmount, amount))
	}
	span.SetAttributes(attribute.Int64("user", userID), attribute.Int64("amount", amount))

	balance, err := p.apply(ctx, userID, model.CHARGE, amount, func(current int64) (int64, error) {
		if current > math.MaxInt64-amount {
			return 0, fmt.Errorf("%w: balance overflow", model.ErrInvalidAmount)
		}
		return current + amount, nil
	})
	if err != nil {
		return model.UserPoint{}, p.failed(span, "charge", err)
	}
	operationsTotal.WithLabelValues("charge", "ok").Inc()
	return balance, nil
}

// списание
func (p *PointsService) Use(ctx context.Context, id string, amount int64) (model.UserPoint, error) {
	ctx, span := tracer.Start(ctx, "PointsService.Use")
	defer span.End()

	userID, err := ParseUserID(id)
	if err != nil {
		return model.UserPoint{}, p.failed(span, "use", err)
	}
	if amount <= 0 {
		return model.UserPoint{}, p.failed(span, "use", fmt.Errorf("%w: %d", model.ErrInvalidAmount, amount))
	}
	span.SetAttributes(attribute.Int64("user", userID), attribute.Int64("amount", amount))

	balance, err := p.apply(ctx, userID, model.USE, amount, func(current int64) (int64, error) {
		if amount > current {
			return 0, fmt.Errorf("%w: have %d, need %d", model.ErrInsufficientBalance, current, amount)
		}
		return current - amount, nil
	})
	if err != nil {
		return model.UserPoint{}, p.failed(span, "use", err)
	}
	operationsTotal.WithLabelValues("use", "ok").Inc()
	return balance, nil
}

// apply runs read-compute-write-append for one user under the user's lock.
// Only waiting for the lock can be cancelled; after that the sequence runs to completion.
func (p *PointsService) apply(ctx context.Context, userID int64, typeTnx model.TransactionType, amount int64, compute func(current int64) (int64, error)) (model.UserPoint, error) {
	lock := p.locks.get(userID)
	started := time.Now()
	if err := lock.Acquire(ctx, 1); err != nil {
		return model.UserPoint{}, fmt.Errorf("wait lock for user %d: %w", userID, err)
	}
	lockWaitDuration.WithLabelValues(typeTnx.String()).Observe(time.Since(started).Seconds())

	balance, record, err := p.commit(context.WithoutCancel(ctx), userID, typeTnx, amount, compute)
	lock.Release(1)
	if err != nil {
		return model.UserPoint{}, err
	}

	p.publish(ctx, balance, record)
	return balance, nil
}

func (p *PointsService) commit(ctx context.Context, userID int64, typeTnx model.TransactionType, amount int64, compute func(current int64) (int64, error)) (model.UserPoint, model.PointHistory, error) {
	current, err := p.accounts.Get(ctx, userID)
	if err != nil {
		return model.UserPoint{}, model.PointHistory{}, fmt.Errorf("get balance: %w", err)
	}
	next, err := compute(current.Point)
	if err != nil {
		return model.UserPoint{}, model.PointHistory{}, err
	}

	var balance model.UserPoint
	var record model.PointHistory
	if p.ledger != nil {
		balance, record, err = p.ledger.Commit(ctx, userID, next, typeTnx, amount)
		if err != nil {
			return model.UserPoint{}, model.PointHistory{}, fmt.Errorf("commit: %w", err)
		}
	} else {
		balance, record, err = p.putAndAppend(ctx, userID, current.Point, next, typeTnx, amount)
		if err != nil {
			return model.UserPoint{}, model.PointHistory{}, err
		}
	}

	p.cacheBalance(ctx, balance)
	return balance, record, nil
}

// putAndAppend writes balance and history separately; a failed append is undone with a compensating Put.
func (p *PointsService) putAndAppend(ctx context.Context, userID, current, next int64, typeTnx model.TransactionType, amount int64) (model.UserPoint, model.PointHistory, error) {
	balance, err := p.accounts.Put(ctx, userID, next)
	if err != nil {
		return model.UserPoint{}, model.PointHistory{}, fmt.Errorf("put balance: %w", err)
	}
	record, err := p.history.Append(ctx, userID, balance.Point, typeTnx, amount, balance.UpdateMillis)
	if err == nil {
		return balance, record, nil
	}

	// откат баланса: операция без записи в истории не проводится
	var rerr error
	for i := 0; i < rollbackAttempts; i++ {
		var restored model.UserPoint
		if restored, rerr = p.accounts.Put(ctx, userID, current); rerr == nil {
			p.cacheBalance(ctx, restored)
			return model.UserPoint{}, model.PointHistory{}, fmt.Errorf("append history: %w", err)
		}
	}
	p.logger.Error("balance rollback",
		zap.Int64("user", userID),
		zap.Int64("point", current),
		zap.Error(rerr),
	)
	p.invalidate(ctx, userID)
	return model.UserPoint{}, model.PointHistory{}, fmt.Errorf("append history: %w (balance rollback failed: %v)", err, rerr)
}

// Запись в кэш под блокировкой счета: последующий SetBalanceIfAbsent читателя не перетрет значение
func (p *PointsService) cacheBalance(ctx context.Context, balance model.UserPoint) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetBalance(ctx, balance); err != nil {
		p.logger.Warn("cache set", zap.Int64("user", balance.ID), zap.Error(err))
		p.invalidate(ctx, balance.ID)
	}
}

func (p *PointsService) invalidate(ctx context.Context, userID int64) {
	if p.cache == nil {
		return
	}
	if err := p.cache.InvalidateBalance(ctx, userID); err != nil {
		p.logger.Error("cache invalidate", zap.Int64("user", userID), zap.Error(err))
	}
}

// событие отправляется после снятия блокировки, ошибка не отменяет проведенную операцию
func (p *PointsService) publish(ctx context.Context, balance model.UserPoint, record model.PointHistory) {
	if p.publisher == nil {
		return
	}
	event := model.PointEvent{
		EventID:    uuid.New(),
		HistoryID:  record.ID,
		UserID:     record.UserID,
		Type:       record.Type,
		Amount:     record.Amount,
		Point:      balance.Point,
		TimeMillis: record.TimeMillis,
	}
	if err := p.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		p.logger.Error("publish event",
			zap.Int64("user", event.UserID),
			zap.Int64("history", event.HistoryID),
			zap.Error(err),
		)
	}
}

// HandleCommand decodes a queued command and runs it as charge or use.
func (p *PointsService) HandleCommand(ctx context.Context, typeTnx model.TransactionType, payload []byte) (model.CommandConfirm, error) {
	cmd := model.PointCommand{}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return model.CommandConfirm{}, fmt.Errorf("invalid command: %w", err)
	}
	confirm := model.CommandConfirm{CommandID: cmd.CommandID}

	var balance model.UserPoint
	var err error
	switch typeTnx {
	case model.CHARGE:
		balance, err = p.Charge(ctx, cmd.UserID, cmd.Amount)
	case model.USE:
		balance, err = p.Use(ctx, cmd.UserID, cmd.Amount)
	default:
		err = fmt.Errorf("unknown transaction type %d", typeTnx)
	}
	if err != nil {
		confirm.Error = err.Error()
		return confirm, err
	}
	confirm.Success = true
	confirm.Point = balance.Point
	return confirm, nil
}

func (p *PointsService) failed(span trace.Span, operation string, err error) error {
	result := "error"
	switch {
	case errors.Is(err, model.ErrInvalidUserID), errors.Is(err, model.ErrInvalidAmount):
		result = "invalid"
	case errors.Is(err, model.ErrInsufficientBalance):
		result = "insufficient"
	default:
		p.logger.Error("Points service",
			zap.String("service", operation),
			zap.Error(err),
		)
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
