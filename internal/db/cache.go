package points

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	interf "github.com/glkeru/loyalty/userpoints/internal/interfaces"
	model "github.com/glkeru/loyalty/userpoints/internal/models"
	redis "github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("balance not found in cache")

const (
	cacheTTL = 5 * time.Minute
	// метка сброшенного баланса: пока она жива, SetBalanceIfAbsent не запишет устаревшее значение
	invalidMark = "invalid"
	invalidTTL  = 30 * time.Second
)

type CacheService struct {
	client *redis.Client
}

func NewCacheService(ctx context.Context, addr, user, pwd string) (serv *CacheService, err error) {
	db := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    pwd,
		Username:    user,
		DB:          0,
		MaxRetries:  5,
		DialTimeout: 10 * time.Second,
	})
	err = db.Ping(ctx).Err()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &CacheService{db}, nil
}

func cacheKey(userID int64) string {
	return "points:" + strconv.FormatInt(userID, 10)
}

func (c *CacheService) GetBalance(ctx context.Context, userID int64) (balance model.UserPoint, err error) {
	val, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if err == redis.Nil {
		return balance, ErrCacheMiss
	} else if err != nil {
		return balance, err
	}
	return decodeBalance(val)
}

func decodeBalance(val []byte) (balance model.UserPoint, err error) {
	if string(val) == invalidMark {
		return balance, ErrCacheMiss
	}
	err = json.Unmarshal(val, &balance)
	return balance, err
}

// Запись после изменения баланса (под блокировкой счета)
func (c *CacheService) SetBalance(ctx context.Context, balance model.UserPoint) error {
	val, err := json.Marshal(balance)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(balance.ID), val, cacheTTL).Err()
}

// Запись при чтении: не перетирает значение, записанное после изменения
func (c *CacheService) SetBalanceIfAbsent(ctx context.Context, balance model.UserPoint) error {
	val, err := json.Marshal(balance)
	if err != nil {
		return err
	}
	return c.client.SetNX(ctx, cacheKey(balance.ID), val, cacheTTL).Err()
}

func (c *CacheService) InvalidateBalance(ctx context.Context, userID int64) error {
	return c.client.Set(ctx, cacheKey(userID), invalidMark, invalidTTL).Err()
}

func (c *CacheService) Close() error {
	return c.client.Close()
}

var _ interf.CacheStorage = (*CacheService)(nil)
