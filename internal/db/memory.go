package points

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	interf "github.com/glkeru/loyalty/userpoints/internal/interfaces"
	model "github.com/glkeru/loyalty/userpoints/internal/models"
)

type TableOption func(*latency)

// WithLatency adds a random delay in [min, max) to every table call.
// Tables behave like a remote storage: a caller may be suspended at any call.
func WithLatency(min, max time.Duration) TableOption {
	return func(l *latency) {
		l.min = min
		l.max = max
	}
}

type latency struct {
	min time.Duration
	max time.Duration
}

func (l latency) wait(ctx context.Context) error {
	if l.max <= 0 {
		return ctx.Err()
	}
	d := l.min
	if l.max > l.min {
		d += time.Duration(rand.Int63n(int64(l.max - l.min)))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Балансы в памяти
type AccountTable struct {
	mu      sync.RWMutex
	rows    map[int64]model.UserPoint
	latency latency
}

func NewAccountTable(opts ...TableOption) *AccountTable {
	t := &AccountTable{rows: make(map[int64]model.UserPoint)}
	for _, o := range opts {
		o(&t.latency)
	}
	return t
}

// Get returns the stored balance or a zero balance. Nothing is written on read.
func (t *AccountTable) Get(ctx context.Context, userID int64) (model.UserPoint, error) {
	if err := t.latency.wait(ctx); err != nil {
		return model.UserPoint{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if row, ok := t.rows[userID]; ok {
		return row, nil
	}
	return model.UserPoint{ID: userID, Point: 0, UpdateMillis: model.NowMillis()}, nil
}

func (t *AccountTable) Put(ctx context.Context, userID int64, point int64) (model.UserPoint, error) {
	if err := t.latency.wait(ctx); err != nil {
		return model.UserPoint{}, err
	}
	row := model.UserPoint{ID: userID, Point: point, UpdateMillis: model.NowMillis()}
	t.mu.Lock()
	t.rows[userID] = row
	t.mu.Unlock()
	return row, nil
}

// История в памяти
type HistoryTable struct {
	mu      sync.RWMutex
	seq     atomic.Int64
	rows    map[int64][]model.PointHistory
	latency latency
}

func NewHistoryTable(opts ...TableOption) *HistoryTable {
	t := &HistoryTable{rows: make(map[int64][]model.PointHistory)}
	for _, o := range opts {
		o(&t.latency)
	}
	return t
}

func (t *HistoryTable) Append(ctx context.Context, userID int64, point int64, typeTnx model.TransactionType, amount int64, timeMillis int64) (model.PointHistory, error) {
	if err := t.latency.wait(ctx); err != nil {
		return model.PointHistory{}, err
	}
	rec := model.PointHistory{
		UserID:     userID,
		Type:       typeTnx,
		Amount:     amount,
		TimeMillis: timeMillis,
	}
	// id берется под блокировкой таблицы: записи одного пользователя лежат по возрастанию id
	t.mu.Lock()
	rec.ID = t.seq.Add(1)
	t.rows[userID] = append(t.rows[userID], rec)
	t.mu.Unlock()
	return rec, nil
}

func (t *HistoryTable) ListByUser(ctx context.Context, userID int64) ([]model.PointHistory, error) {
	if err := t.latency.wait(ctx); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := t.rows[userID]
	result := make([]model.PointHistory, len(rows))
	copy(result, rows)
	return result, nil
}

var (
	_ interf.AccountStorage = (*AccountTable)(nil)
	_ interf.HistoryStorage = (*HistoryTable)(nil)
)
