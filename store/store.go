package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/streamingfast/subgraph-runtime/entity"
	"github.com/streamingfast/subgraph-runtime/metrics"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("entity not found")

// Reader is the read side of the entity store, used to answer queries.
type Reader interface {
	Load(ctx context.Context, key entity.StoreKey) (entity.Entity, error)
}

// Store persists the latest version of every entity in a single
// `entities` table keyed by subgraph, entity type and id.
type Store struct {
	db      *sqlx.DB
	dialect dialect
	metrics *metrics.Metrics
}

type Option func(s *Store)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	d, dataSourceName, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, d.driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s store: %w", d.driver, err)
	}

	if d.driver == sqliteDialect.driver {
		// A single connection keeps :memory: databases alive and writes serialized.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating entities table: %w", err)
	}

	s := &Store{db: db, dialect: d}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNoop()
	}

	zlog.Info("entity store ready", zap.String("driver", d.driver))
	return s, nil
}

// Apply writes ev: an EntitySet replaces the whole stored entity, an
// EntityRemoved deletes it. Removing a missing entity is not an error.
func (s *Store) Apply(ctx context.Context, source string, ev entity.Event) (err error) {
	key := ev.StoreKey()
	if err := key.Validate(); err != nil {
		return err
	}

	var op string
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.StoreOperations.WithLabelValues(op, status).Inc()
	}()

	switch e := ev.(type) {
	case *entity.EntitySet:
		op = "set"
		return s.set(ctx, source, key, e.Entity)
	case *entity.EntityRemoved:
		op = "remove"
		return s.remove(ctx, key)
	}

	op = "unknown"
	return fmt.Errorf("unsupported entity event %T", ev)
}

func (s *Store) set(ctx context.Context, source string, key entity.StoreKey, ent entity.Entity) error {
	data, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("encoding entity %s: %w", key, err)
	}

	query := s.db.Rebind(`
		INSERT INTO entities (subgraph, entity, id, data, event_source)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (subgraph, entity, id)
		DO UPDATE SET data = excluded.data, event_source = excluded.event_source`)

	if _, err := s.db.ExecContext(ctx, query, key.Subgraph, key.EntityType, key.ID, string(data), source); err != nil {
		return fmt.Errorf("saving entity %s: %w", key, err)
	}

	zlog.Debug("entity saved", zap.Stringer("key", key), zap.String("event_source", source))
	return nil
}

func (s *Store) remove(ctx context.Context, key entity.StoreKey) error {
	query := s.db.Rebind(`DELETE FROM entities WHERE subgraph = ? AND entity = ? AND id = ?`)
	if _, err := s.db.ExecContext(ctx, query, key.Subgraph, key.EntityType, key.ID); err != nil {
		return fmt.Errorf("removing entity %s: %w", key, err)
	}

	zlog.Debug("entity removed", zap.Stringer("key", key))
	return nil
}

type row struct {
	Data        string `db:"data"`
	EventSource string `db:"event_source"`
}

// Load returns the stored entity at key, ErrNotFound if there is none.
func (s *Store) Load(ctx context.Context, key entity.StoreKey) (entity.Entity, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var r row
	query := s.db.Rebind(`SELECT data, event_source FROM entities WHERE subgraph = ? AND entity = ? AND id = ?`)
	err := s.db.GetContext(ctx, &r, query, key.Subgraph, key.EntityType, key.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		s.metrics.StoreOperations.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("loading entity %s: %w", key, err)
	}
	s.metrics.StoreOperations.WithLabelValues("load", "ok").Inc()

	ent := entity.Entity{}
	if err := json.Unmarshal([]byte(r.Data), &ent); err != nil {
		return nil, fmt.Errorf("decoding entity %s: %w", key, err)
	}
	return ent, nil
}

// Count returns how many entities of entityType the subgraph has stored.
func (s *Store) Count(ctx context.Context, subgraph, entityType string) (int, error) {
	var count int
	query := s.db.Rebind(`SELECT COUNT(*) FROM entities WHERE subgraph = ? AND entity = ?`)
	if err := s.db.GetContext(ctx, &count, query, subgraph, entityType); err != nil {
		return 0, fmt.Errorf("counting %s entities of %s: %w", entityType, subgraph, err)
	}
	return count, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ Reader = (*Store)(nil)
