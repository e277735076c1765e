package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FairForge/thumbprint/internal/profile"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	snapshot_id   TEXT PRIMARY KEY,
	entity_id     TEXT NOT NULL,
	snapshot_date TEXT NOT NULL,
	granularity   TEXT NOT NULL,
	payload       BLOB NOT NULL,
	created_at    TEXT NOT NULL,
	UNIQUE (entity_id, snapshot_date, granularity)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_entity
	ON snapshots (entity_id, granularity, snapshot_date);
`

const sqliteDateFormat = "2006-01-02"

// SQLiteRepository stores snapshots in a single SQLite file for embedded
// deployments. Same contract as the Postgres store.
type SQLiteRepository struct {
	db      *sql.DB
	logger  *zap.Logger
	limiter *rate.Limiter
}

// NewSQLiteRepository opens (or creates) the database file and ensures the
// schema. Path ":memory:" gives an ephemeral store.
func NewSQLiteRepository(path string, pruneRate int, logger *zap.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pruneRate <= 0 {
		pruneRate = 100
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite writers serialize; keep one connection to avoid lock churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate snapshots schema: %w", err)
	}
	return &SQLiteRepository{
		db:      db,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(pruneRate), pruneRate),
	}, nil
}

// Create upserts a snapshot, returning the existing ID on conflict.
func (r *SQLiteRepository) Create(ctx context.Context, entityID string, date time.Time, granularity string, p *profile.EntityProfile) (uuid.UUID, error) {
	if !ValidGranularity(granularity) {
		return uuid.Nil, fmt.Errorf("invalid granularity: %s", granularity)
	}
	data, err := encodePayload(p)
	if err != nil {
		return uuid.Nil, err
	}

	query := `
		INSERT INTO snapshots (snapshot_id, entity_id, snapshot_date, granularity, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_id, snapshot_date, granularity)
		DO UPDATE SET snapshot_id = snapshot_id
		RETURNING snapshot_id
	`
	var idStr string
	err = r.db.QueryRowContext(ctx, query,
		uuid.New().String(), entityID, DateOnly(date).Format(sqliteDateFormat),
		granularity, data, time.Now().UTC().Format(time.RFC3339)).Scan(&idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create snapshot: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse snapshot id %q: %w", idStr, err)
	}
	return id, nil
}

// GetHistory returns snapshots in [from, to] ordered by date ascending.
func (r *SQLiteRepository) GetHistory(ctx context.Context, entityID string, from, to time.Time, granularity string) ([]*Snapshot, error) {
	query := `
		SELECT snapshot_id, entity_id, snapshot_date, granularity, payload, created_at
		FROM snapshots
		WHERE entity_id = ?
		  AND snapshot_date BETWEEN ? AND ?
		  AND (? = '' OR granularity = ?)
		ORDER BY snapshot_date ASC
	`
	rows, err := r.db.QueryContext(ctx, query, entityID,
		DateOnly(from).Format(sqliteDateFormat), DateOnly(to).Format(sqliteDateFormat),
		granularity, granularity)
	if err != nil {
		return nil, fmt.Errorf("get snapshot history: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return r.scan(rows)
}

// Latest returns up to limit newest snapshots, newest first.
func (r *SQLiteRepository) Latest(ctx context.Context, entityID, granularity string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 2
	}
	query := `
		SELECT snapshot_id, entity_id, snapshot_date, granularity, payload, created_at
		FROM snapshots
		WHERE entity_id = ?
		  AND (? = '' OR granularity = ?)
		ORDER BY snapshot_date DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, entityID, granularity, granularity, limit)
	if err != nil {
		return nil, fmt.Errorf("get latest snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return r.scan(rows)
}

// Prune deletes snapshots past their retention window, rate-limited per
// granularity.
func (r *SQLiteRepository) Prune(ctx context.Context, policy RetentionPolicy) (int64, error) {
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
			`DELETE FROM snapshots WHERE granularity = ? AND snapshot_date < ?`,
			g, DateOnly(cutoff).Format(sqliteDateFormat))
		if err != nil {
			return total, fmt.Errorf("prune %s snapshots: %w", g, err)
		}
		n, _ := result.RowsAffected()
		total += n
		if n > 0 {
			r.logger.Info("pruned snapshots",
				zap.String("granularity", g),
				zap.Int64("removed", n))
		}
	}
	return total, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) scan(rows *sql.Rows) ([]*Snapshot, error) {
	var out []*Snapshot
	for rows.Next() {
		var s Snapshot
		var idStr, dateStr, createdStr string
		var data []byte
		if err := rows.Scan(&idStr, &s.EntityID, &dateStr, &s.Granularity, &data, &createdStr); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse snapshot id %q: %w", idStr, err)
		}
		s.ID = id
		if s.SnapshotDate, err = time.Parse(sqliteDateFormat, dateStr); err != nil {
			return nil, fmt.Errorf("parse snapshot date %q: %w", dateStr, err)
		}
		if s.CreatedAt, err = time.Parse(time.RFC3339, createdStr); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdStr, err)
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
