package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/juju/errors"
	_ "github.com/lib/pq"

	"github.com/coreason/maco/store"
	"github.com/coreason/maco/types"
)

var (
	_ store.Store = &pgStore{}
)

func DefaultConfig() *types.PostgresConfig {
	return &types.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "maco",
		SSLMode:  "disable",
	}
}

// pgStore implements Store backed by a single maco_store table.
type pgStore struct {
	db *sql.DB
}

func NewPostgresStore(config *types.PostgresConfig) (store.Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open postgres connection")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "failed to ping postgres")
	}

	s := &pgStore{db: db}
	if err := s.initTable(context.Background()); err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "failed to initialize table")
	}
	return s, nil
}

// NewPostgresStoreWithDB wraps an existing connection, e.g. a test pool.
func NewPostgresStoreWithDB(db *sql.DB) (store.Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	s := &pgStore{db: db}
	if err := s.initTable(context.Background()); err != nil {
		return nil, errors.Annotatef(err, "failed to initialize table")
	}
	return s, nil
}

func (p *pgStore) initTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS maco_store (
			prefix VARCHAR(255) NOT NULL,
			key VARCHAR(255) NOT NULL,
			value BYTEA,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (prefix, key)
		);

		CREATE INDEX IF NOT EXISTS idx_maco_store_prefix ON maco_store(prefix);
	`

	_, err := p.db.ExecContext(ctx, query)
	if err != nil {
		return errors.Annotatef(err, "failed to create table")
	}
	return nil
}

func (p *pgStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	query := `SELECT value FROM maco_store WHERE prefix = $1 AND key = $2`

	var value []byte
	err := p.db.QueryRowContext(ctx, query, prefix, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Annotatef(err, "failed to get value for prefix=%s, key=%s", prefix, key)
	}
	return value, nil
}

func (p *pgStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	query := `
		INSERT INTO maco_store (prefix, key, value, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (prefix, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP
	`

	_, err := p.db.ExecContext(ctx, query, prefix, key, value)
	if err != nil {
		return errors.Annotatef(err, "failed to set value for prefix=%s, key=%s", prefix, key)
	}
	return nil
}

func (p *pgStore) Remove(ctx context.Context, prefix, key string) error {
	query := `DELETE FROM maco_store WHERE prefix = $1 AND key = $2`

	_, err := p.db.ExecContext(ctx, query, prefix, key)
	if err != nil {
		return errors.Annotatef(err, "failed to remove value for prefix=%s, key=%s", prefix, key)
	}
	return nil
}

func (p *pgStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	query := `SELECT key FROM maco_store WHERE prefix = $1 ORDER BY key`

	rows, err := p.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return errors.Annotatef(err, "failed to list keys for prefix=%s", prefix)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return errors.Annotatef(err, "failed to scan key")
		}
		if !iterator(key) {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return errors.Annotatef(err, "error iterating rows")
	}
	return nil
}

func (p *pgStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
