package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FairForge/thumbprint/internal/profile"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	snapshot_id   UUID PRIMARY KEY,
	entity_id     TEXT NOT NULL,
	snapshot_date DATE NOT NULL,
	granularity   TEXT NOT NULL,
	payload       BYTEA NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (entity_id, snapshot_date, granularity)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_entity
	ON snapshots (entity_id, granularity, snapshot_date);
`

// PostgresConfig holds connection settings for the Postgres store.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// PostgresRepository stores snapshots in PostgreSQL. The uniqueness
// guarantee under concurrent writers comes from the UNIQUE constraint and an
// upsert, not from any external lock.
type PostgresRepository struct {
	db      *sql.DB
	logger  *zap.Logger
	limiter *rate.Limiter
}

// NewPostgresRepository opens a connection pool and ensures the schema.
func NewPostgresRepository(cfg PostgresConfig, pruneRate int, logger *zap.Logger) (*PostgresRepository, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate snapshots schema: %w", err)
	}
	return newPostgresRepository(db, pruneRate, logger), nil
}

// NewPostgresRepositoryWithDB wraps an existing connection (tests).
func NewPostgresRepositoryWithDB(db *sql.DB, pruneRate int, logger *zap.Logger) *PostgresRepository {
	return newPostgresRepository(db, pruneRate, logger)
}

func newPostgresRepository(db *sql.DB, pruneRate int, logger *zap.Logger) *PostgresRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pruneRate <= 0 {
		pruneRate = 100
	}
	return &PostgresRepository{
		db:      db,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(pruneRate), pruneRate),
	}
}

// Create upserts a snapshot. On conflict the no-op update lets RETURNING
// yield the existing row's ID, making duplicate attempts idempotent.
func (r *PostgresRepository) Create(ctx context.Context, entityID string, date time.Time, granularity string, p *profile.EntityProfile) (uuid.UUID, error) {
	if !ValidGranularity(granularity) {
		return uuid.Nil, fmt.Errorf("invalid granularity: %s", granularity)
	}
	data, err := encodePayload(p)
	if err != nil {
		return uuid.Nil, err
	}

	query := `
		INSERT INTO snapshots (snapshot_id, entity_id, snapshot_date, granularity, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_id, snapshot_date, granularity)
		DO UPDATE SET snapshot_id = snapshots.snapshot_id
		RETURNING snapshot_id
	`
	var id uuid.UUID
	err = r.db.QueryRowContext(ctx, query,
		uuid.New(), entityID, DateOnly(date), granularity, data, time.Now().UTC()).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create snapshot: %w", err)
	}
	return id, nil
}

// GetHistory returns snapshots in [from, to] ordered by date ascending.
func (r *PostgresRepository) GetHistory(ctx context.Context, entityID string, from, to time.Time, granularity string) ([]*Snapshot, error) {
	query := `
		SELECT snapshot_id, entity_id, snapshot_date, granularity, payload, created_at
		FROM snapshots
		WHERE entity_id = $1
		  AND snapshot_date BETWEEN $2 AND $3
		  AND ($4 = '' OR granularity = $4)
		ORDER BY snapshot_date ASC
	`
	rows, err := r.db.QueryContext(ctx, query, entityID, DateOnly(from), DateOnly(to), granularity)
	if err != nil {
		return nil, fmt.Errorf("get snapshot history: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSnapshots(rows)
}

// Latest returns up to limit newest snapshots, newest first.
func (r *PostgresRepository) Latest(ctx context.Context, entityID, granularity string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 2
	}
	query := `
		SELECT snapshot_id, entity_id, snapshot_date, granularity, payload, created_at
		FROM snapshots
		WHERE entity_id = $1
		  AND ($2 = '' OR granularity = $2)
		ORDER BY snapshot_date DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, entityID, granularity, limit)
	if err != nil {
		return nil, fmt.Errorf("get latest snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSnapshots(rows)
}

// Prune deletes snapshots past their granularity's retention window. Each
// granularity's delete waits on the shared rate limiter so pruning never
// starves live writers.
func (r *PostgresRepository) Prune(ctx context.Context, policy RetentionPolicy) (int64, error) {
	var total int64
	for _, g := range Granularities() {
		cutoff, ok := policy.Cutoff(g)
		if !ok {
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return total, err
		}
		result, err := r.db.ExecContext(ctx,
			`DELETE FROM snapshots WHERE granularity = $1 AND snapshot_date < $2`,
			g, DateOnly(cutoff))
		if err != nil {
			return total, fmt.Errorf("prune %s snapshots: %w", g, err)
		}
		n, _ := result.RowsAffected()
		total += n
		if n > 0 {
			r.logger.Info("pruned snapshots",
				zap.String("granularity", g),
				zap.Int64("removed", n),
				zap.Time("cutoff", cutoff))
		}
	}
	return total, nil
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func scanSnapshots(rows *sql.Rows) ([]*Snapshot, error) {
	var out []*Snapshot
	for rows.Next() {
		var s Snapshot
		var data []byte
		if err := rows.Scan(&s.ID, &s.EntityID, &s.SnapshotDate, &s.Granularity, &data, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		p, err := decodePayload(s.EntityID, data)
		if err != nil {
			return nil, err
		}
		s.Profile = p
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}
