// Package repository содержит реализацию доступа к данным в PostgreSQL и в памяти.
package repository

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
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

	"github.com/mmeshcher/supplier-orders/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository хранит разделы журнала и справочник поставщиков в PostgreSQL.
// Наблюдение за разделами идёт через одно выделенное соединение и не занимает соединения пула.
type PostgresRepository struct {
	pool     *pgxpool.Pool
	listener *listener
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

	r := &PostgresRepository{
		pool:     pool,
		listener: newListener(pgxConnector(cfg.ConnConfig)),
	}

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

// withRetry повторяет чтение при обрыве соединения. Записи не повторяются:
// исход прерванной записи неизвестен, решение принимает журнал.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isConnectionError(err) || i == len(delays) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delays[i]):
		}
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// isConflict распознаёт ошибки PostgreSQL, означающие конкурентное изменение раздела.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.UniqueViolation:
		return true
	}
	return false
}

// partitionTag возвращает метку раздела для payload уведомления.
// Имя компании произвольное, поэтому в метку попадает её хеш.
func partitionTag(key model.PartitionKey) string {
	sum := sha256.Sum256([]byte(key.Company + "\x00" + key.WeekStart.String()))
	return hex.EncodeToString(sum[:16])
}

// Close останавливает наблюдение и закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.listener.close()
	r.pool.Close()
	return nil
}

// Load возвращает раздел журнала.
func (r *PostgresRepository) Load(ctx context.Context, key model.PartitionKey) (model.Partition, error) {
	p := model.Partition{Company: key.Company, WeekStart: key.WeekStart}

	err := r.withRetry(ctx, func() error {
		var (
			raw     []byte
			version int64
		)
		err := r.pool.QueryRow(ctx,
			`SELECT entries, version FROM order_ledger WHERE company = $1 AND week_start = $2`,
			key.Company, int64(key.WeekStart),
		).Scan(&raw, &version)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				p.Entries, p.Version = nil, 0
				return nil
			}
			return err
		}

		var entries []model.OrderEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("decode entries: %w", err)
		}
		p.Entries, p.Version = entries, version
		return nil
	})
	if err != nil {
		return model.Partition{}, fmt.Errorf("load partition %s: %w", key, err)
	}

	return p, nil
}

// Save записывает раздел при совпадении версии и уведомляет слушателей в той же транзакции.
func (r *PostgresRepository) Save(ctx context.Context, p model.Partition) error {
	key := p.Key()

	entries := p.Entries
	if entries == nil {
		entries = []model.OrderEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var cmdTag pgconn.CommandTag
	if p.Version == 0 {
		cmdTag, err = tx.Exec(ctx,
			`INSERT INTO order_ledger (company, week_start, entries, version)
			 VALUES ($1, $2, $3, 1)
			 ON CONFLICT (company, week_start) DO NOTHING`,
			key.Company, int64(key.WeekStart), data,
		)
	} else {
		cmdTag, err = tx.Exec(ctx,
			`UPDATE order_ledger
			 SET entries = $3, version = version + 1, updated_at = now()
			 WHERE company = $1 AND week_start = $2 AND version = $4`,
			key.Company, int64(key.WeekStart), data, p.Version,
		)
	}
	if err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %s", ErrConflict, key)
		}
		return fmt.Errorf("save partition %s: %w", key, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s at version %d", ErrConflict, key, p.Version)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, partitionTag(key)); err != nil {
		return fmt.Errorf("notify partition %s: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %s", ErrConflict, key)
		}
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Watch подписывает раздел на общее соединение LISTEN и блокируется, пока ctx не отменён.
// changed вызывается сразу после подписки и на каждое уведомление; он не должен блокироваться.
func (r *PostgresRepository) Watch(ctx context.Context, key model.PartitionKey, changed func()) error {
	if err := r.listener.watch(ctx, partitionTag(key), changed); err != nil {
		return fmt.Errorf("watch %s: %w", key, err)
	}
	return nil
}

// ListProviders возвращает справочник поставщиков компании.
func (r *PostgresRepository) ListProviders(ctx context.Context, company string) ([]model.Provider, error) {
	var res []model.Provider

	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT code, name, type, visit_config
			 FROM providers
			 WHERE company = $1
			 ORDER BY code`,
			company,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		res = res[:0]
		for rows.Next() {
			var (
				p   model.Provider
				typ string
			)
			if err := rows.Scan(&p.Code, &p.Name, &typ, &p.VisitConfig); err != nil {
				return fmt.Errorf("scan provider: %w", err)
			}
			p.Type = model.ProviderType(typ)
			res = append(res, p)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("select providers: %w", err)
	}

	return res, nil
}
