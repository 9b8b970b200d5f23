// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/shipsync-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoCandidate возвращается, если открытый кандидат на объединение не найден.
var ErrNoCandidate = errors.New("combine candidate not found")

// PostgresRepository предоставляет доступ к хранилищу кандидатов в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// UpsertOrder добавляет заказ к открытому кандидату для пары (покупатель, отпечаток)
// либо создаёт нового кандидата, если открытого внутри окна нет.
// Последовательность поиск-затем-запись выполняется в одной транзакции под
// advisory-блокировкой ключа, поэтому параллельные вебхуки одного покупателя
// не создают дублирующихся открытых кандидатов.
func (r *PostgresRepository) UpsertOrder(ctx context.Context, customerID, email, shippingHash, orderName string, costCents *int64, since time.Time) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		// Сериализуем конкурирующие вставки по ключу (покупатель, отпечаток).
		_, err = tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`,
			customerID, shippingHash,
		)
		if err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}

		var id int64
		err = tx.QueryRow(ctx,
			`SELECT id FROM combines
			 WHERE customer_id = $1 AND shipping_hash = $2 AND confirmed = false AND created_at > $3
			 ORDER BY created_at DESC
			 LIMIT 1`,
			customerID, shippingHash, since,
		).Scan(&id)

		switch {
		case err == nil:
			_, err = tx.Exec(ctx,
				`UPDATE combines
				 SET member_orders = array_append(member_orders, $2),
				     shipping_cost = COALESCE($3::bigint, shipping_cost)
				 WHERE id = $1`,
				id, orderName, costCents,
			)
			if err != nil {
				return fmt.Errorf("append order: %w", err)
			}
		case errors.Is(err, pgx.ErrNoRows):
			var initialCost int64
			if costCents != nil {
				initialCost = *costCents
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO combines (customer_id, email, shipping_hash, member_orders, confirmed, shipping_cost)
				 VALUES ($1, $2, $3, ARRAY[$4], false, $5)`,
				customerID, email, shippingHash, orderName, initialCost,
			)
			if err != nil {
				return fmt.Errorf("insert candidate: %w", err)
			}
		default:
			return fmt.Errorf("select open candidate: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// FindOpenByCustomer возвращает самого свежего открытого кандидата покупателя
// внутри окна объединения. Возвращает ErrNoCandidate, если такого нет.
func (r *PostgresRepository) FindOpenByCustomer(ctx context.Context, customerID string, since time.Time) (*model.Candidate, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, email, shipping_hash, member_orders, confirmed, shipping_cost, created_at
		 FROM combines
		 WHERE customer_id = $1 AND confirmed = false AND created_at > $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		customerID, since,
	)

	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCandidate
		}
		return nil, fmt.Errorf("select candidate: %w", err)
	}

	return c, nil
}

// ConfirmByCustomer помечает подтверждённым самого свежего неподтверждённого
// кандидата покупателя. Окно не проверяется: покупатель подтверждает
// предложение, которое уже видел живым. Повторный вызов — no-op.
func (r *PostgresRepository) ConfirmByCustomer(ctx context.Context, customerID string) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE combines SET confirmed = true
			 WHERE id = (
			     SELECT id FROM combines
			     WHERE customer_id = $1 AND confirmed = false
			     ORDER BY created_at DESC
			     LIMIT 1
			 )`,
			customerID,
		)
		if err != nil {
			return fmt.Errorf("confirm candidate: %w", err)
		}
		return nil
	})
}

// ListUnconfirmed возвращает всех неподтверждённых кандидатов, новые первыми.
func (r *PostgresRepository) ListUnconfirmed(ctx context.Context) ([]model.Candidate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, customer_id, email, shipping_hash, member_orders, confirmed, shipping_cost, created_at
		 FROM combines
		 WHERE confirmed = false
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	defer rows.Close()

	var res []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanCandidate(row pgx.Row) (*model.Candidate, error) {
	var (
		c         model.Candidate
		costCents int64
	)
	err := row.Scan(&c.ID, &c.CustomerID, &c.Email, &c.ShippingHash, &c.MemberOrders, &c.Confirmed, &costCents, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.ShippingCost = float64(costCents) / 100

	return &c, nil
}
