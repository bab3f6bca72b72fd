package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// queryer — общее подмножество *sql.DB и *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL и реализует domain.UnitOfWork.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type repositories struct {
	q queryer
}

func (r repositories) Orders() domain.OrderRepository               { return &orderRepository{q: r.q} }
func (r repositories) Payments() domain.PaymentRepository           { return &paymentRepository{q: r.q} }
func (r repositories) Products() domain.ProductRepository           { return &productRepository{q: r.q} }
func (r repositories) Carts() domain.CartRepository                 { return &cartRepository{q: r.q} }
func (r repositories) Directory() domain.DirectoryRepository        { return &directoryRepository{q: r.q} }
func (r repositories) PaymentEvents() domain.PaymentEventRepository { return &paymentEventRepository{q: r.q} }
func (r repositories) Outbox() domain.OutboxRepository              { return &outboxRepository{q: r.q} }
func (r repositories) Timeline() domain.TimelineRepository          { return &timelineRepository{q: r.q} }

func (s *Store) live() repositories { return repositories{q: s.db} }

func (s *Store) Orders() domain.OrderRepository               { return s.live().Orders() }
func (s *Store) Payments() domain.PaymentRepository           { return s.live().Payments() }
func (s *Store) Products() domain.ProductRepository           { return s.live().Products() }
func (s *Store) Carts() domain.CartRepository                 { return s.live().Carts() }
func (s *Store) Directory() domain.DirectoryRepository        { return s.live().Directory() }
func (s *Store) PaymentEvents() domain.PaymentEventRepository { return s.live().PaymentEvents() }
func (s *Store) Outbox() domain.OutboxRepository              { return s.live().Outbox() }
func (s *Store) Timeline() domain.TimelineRepository          { return s.live().Timeline() }

// WithinTx выполняет fn в одной транзакции READ COMMITTED. Остатки
// защищены условным UPDATE, версии заказов проверяются в Save.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(ctx, repositories{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// inTx выполняет fn в транзакции, если q ещё не транзакция.
func inTx(ctx context.Context, q queryer, fn func(q queryer) error) error {
	db, ok := q.(*sql.DB)
	if !ok {
		return fn(q)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	out := t.Time.UTC()
	return &out
}

var (
	_ domain.UnitOfWork   = (*Store)(nil)
	_ domain.Repositories = repositories{}
)
