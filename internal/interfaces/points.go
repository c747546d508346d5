package points

import (
	"context"

	model "github.com/glkeru/loyalty/userpoints/internal/models"
)

//go:generate mockgen -destination=./../services/mock_points_test.go -package=points . AccountStorage,HistoryStorage,LedgerStorage,CacheStorage,EventPublisher

// Балансы: только хранение, без бизнес-правил
type AccountStorage interface {
	Get(ctx context.Context, userID int64) (model.UserPoint, error)
	Put(ctx context.Context, userID int64, point int64) (model.UserPoint, error)
}

// История транзакций: только добавление
type HistoryStorage interface {
	Append(ctx context.Context, userID int64, point int64, typeTnx model.TransactionType, amount int64, timeMillis int64) (model.PointHistory, error)
	ListByUser(ctx context.Context, userID int64) ([]model.PointHistory, error)
}

// Баланс и запись истории одной транзакцией (PostgreSQL)
type LedgerStorage interface {
	Commit(ctx context.Context, userID int64, point int64, typeTnx model.TransactionType, amount int64) (model.UserPoint, model.PointHistory, error)
}

type CacheStorage interface {
	GetBalance(ctx context.Context, userID int64) (model.UserPoint, error)
	SetBalance(ctx context.Context, balance model.UserPoint) error
	SetBalanceIfAbsent(ctx context.Context, balance model.UserPoint) error
	InvalidateBalance(ctx context.Context, userID int64) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.PointEvent) error
	Close() error
}

// Очередь команд (kafka, rabbitmq)
type CommandReader interface {
	ReadCommand(ctx context.Context) (model.QueueMessage, error)
	Close() error
}

// Очередь с подтверждением обработки
type CommandConfirmer interface {
	Confirm(ctx context.Context, confirm model.CommandConfirm) error
}
