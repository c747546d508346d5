package points

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	interf "github.com/glkeru/loyalty/userpoints/internal/interfaces"
	model "github.com/glkeru/loyalty/userpoints/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Балансы и история в PostgreSQL
type PointsDB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPointsDB(ctx context.Context, dsn string, logger *zap.Logger) (*PointsDB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PointsDB{pool, logger}, nil
}

func (p *PointsDB) Close() {
	p.pool.Close()
}

func (p *PointsDB) sqlError(err error, query string, args []any) {
	p.logger.Error("SQL error",
		zap.Error(err),
		zap.String("query", query),
		zap.Any("args", args),
	)
}

func selectAccountQuery(userID int64) (string, []any, error) {
	return sq.Select("id", "point", "updatemillis").
		From("accounts").
		Where(sq.Eq{"id": userID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func upsertAccountQuery(row model.UserPoint) (string, []any, error) {
	return sq.Insert("accounts").
		Columns("id", "point", "updatemillis").
		Values(row.ID, row.Point, row.UpdateMillis).
		Suffix("ON CONFLICT (id) DO UPDATE SET point = EXCLUDED.point, updatemillis = EXCLUDED.updatemillis").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func insertHistoryQuery(userID, point int64, typeTnx model.TransactionType, amount, timeMillis int64) (string, []any, error) {
	return sq.Insert("history").
		Columns("userid", "point", "typetnx", "amount", "timemillis").
		Values(userID, point, int(typeTnx), amount, timeMillis).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func selectHistoryQuery(userID int64) (string, []any, error) {
	return sq.Select("id", "userid", "typetnx", "amount", "timemillis").
		From("history").
		Where(sq.Eq{"userid": userID}).
		OrderBy("id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

// Получить баланс, если строки нет - нулевой баланс
func (p *PointsDB) Get(ctx context.Context, userID int64) (model.UserPoint, error) {
	sql, args, err := selectAccountQuery(userID)
	if err != nil {
		return model.UserPoint{}, err
	}
	var row model.UserPoint
	err = p.pool.QueryRow(ctx, sql, args...).Scan(&row.ID, &row.Point, &row.UpdateMillis)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.UserPoint{ID: userID, Point: 0, UpdateMillis: model.NowMillis()}, nil
		}
		p.sqlError(err, sql, args)
		return model.UserPoint{}, err
	}
	return row, nil
}

// Сохранить баланс
func (p *PointsDB) Put(ctx context.Context, userID int64, point int64) (model.UserPoint, error) {
	row := model.UserPoint{ID: userID, Point: point, UpdateMillis: model.NowMillis()}
	sql, args, err := upsertAccountQuery(row)
	if err != nil {
		return model.UserPoint{}, err
	}
	if _, err = p.pool.Exec(ctx, sql, args...); err != nil {
		p.sqlError(err, sql, args)
		return model.UserPoint{}, err
	}
	return row, nil
}

// Баланс и транзакция в одной транзакции БД: либо обе записи, либо ни одной
func (p *PointsDB) Commit(ctx context.Context, userID int64, point int64, typeTnx model.TransactionType, amount int64) (balance model.UserPoint, rec model.PointHistory, err error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.UserPoint{}, model.PointHistory{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// обновляем баланс
	balance = model.UserPoint{ID: userID, Point: point, UpdateMillis: model.NowMillis()}
	sql, args, err := upsertAccountQuery(balance)
	if err != nil {
		return model.UserPoint{}, model.PointHistory{}, err
	}
	if _, err = tx.Exec(ctx, sql, args...); err != nil {
		p.sqlError(err, sql, args)
		return model.UserPoint{}, model.PointHistory{}, err
	}

	// добавить транзакцию
	sql, args, err = insertHistoryQuery(userID, point, typeTnx, amount, balance.UpdateMillis)
	if err != nil {
		return model.UserPoint{}, model.PointHistory{}, err
	}
	rec = model.PointHistory{UserID: userID, Type: typeTnx, Amount: amount, TimeMillis: balance.UpdateMillis}
	if err = tx.QueryRow(ctx, sql, args...).Scan(&rec.ID); err != nil {
		p.sqlError(err, sql, args)
		return model.UserPoint{}, model.PointHistory{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return model.UserPoint{}, model.PointHistory{}, err
	}
	return balance, rec, nil
}

// Добавить транзакцию, id выдает sequence
func (p *PointsDB) Append(ctx context.Context, userID int64, point int64, typeTnx model.TransactionType, amount int64, timeMillis int64) (model.PointHistory, error) {
	sql, args, err := insertHistoryQuery(userID, point, typeTnx, amount, timeMillis)
	if err != nil {
		return model.PointHistory{}, err
	}
	rec := model.PointHistory{UserID: userID, Type: typeTnx, Amount: amount, TimeMillis: timeMillis}
	if err = p.pool.QueryRow(ctx, sql, args...).Scan(&rec.ID); err != nil {
		p.sqlError(err, sql, args)
		return model.PointHistory{}, err
	}
	return rec, nil
}

// История пользователя по возрастанию id
func (p *PointsDB) ListByUser(ctx context.Context, userID int64) ([]model.PointHistory, error) {
	sql, args, err := selectHistoryQuery(userID)
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		p.sqlError(err, sql, args)
		return nil, err
	}
	defer rows.Close()

	result := make([]model.PointHistory, 0)
	for rows.Next() {
		var rec model.PointHistory
		var typeTnx int
		if err := rows.Scan(&rec.ID, &rec.UserID, &typeTnx, &rec.Amount, &rec.TimeMillis); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Type = model.TransactionType(typeTnx)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

var (
	_ interf.AccountStorage = (*PointsDB)(nil)
	_ interf.HistoryStorage = (*PointsDB)(nil)
	_ interf.LedgerStorage  = (*PointsDB)(nil)
)
