package points

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Тип транзакции
type TransactionType int

const (
	CHARGE TransactionType = 0
	USE    TransactionType = 1
)

func (t TransactionType) String() string {
	switch t {
	case CHARGE:
		return "CHARGE"
	case USE:
		return "USE"
	}
	return "UNKNOWN"
}

var (
	ErrInvalidUserID       = errors.New("invalid user id")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrQueueClosed         = errors.New("command queue is closed")
)

// Баланс пользователя
type UserPoint struct {
	ID           int64 `json:"id"`
	Point        int64 `json:"point"`
	UpdateMillis int64 `json:"updateMillis"`
}

// История начислений/списаний
type PointHistory struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"userId"`
	Type       TransactionType `json:"type"`
	Amount     int64           `json:"amount"` // запрошенная сумма, не баланс
	TimeMillis int64           `json:"timeMillis"`
}

// Событие о проведенной транзакции
type PointEvent struct {
	EventID    uuid.UUID       `json:"eventId"`
	HistoryID  int64           `json:"historyId"`
	UserID     int64           `json:"userId"`
	Type       TransactionType `json:"type"`
	Amount     int64           `json:"amount"`
	Point      int64           `json:"point"` // баланс после транзакции
	TimeMillis int64           `json:"timeMillis"`
}

// Команда начисления/списания из очереди
type PointCommand struct {
	CommandID string `json:"commandId"`
	UserID    string `json:"userId"`
	Amount    int64  `json:"amount"`
}

// Подтверждение обработки команды
type CommandConfirm struct {
	CommandID string `json:"commandId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Point     int64  `json:"point"`
}

// Сообщение из очереди команд; Ack подтверждает обработку (nil - подтверждать не нужно)
type QueueMessage struct {
	Payload []byte
	Ack     func() error
}

func NowMillis() int64 {
	return time.Now().UnixMilli()
}
