// Package persistence implements snapshot & restore (§4.G): an
// append-only, per-session-version log of session.Snapshot rows
// backed by Postgres. Grounded on internal/db/db.go's pool
// construction (Vault-first, DATABASE_URL-fallback, pgxpool tuning,
// sony/gobreaker circuit breaker) and internal/db/sessions.go's
// CRUD shape (parameterized queries, zerolog error logging,
// fmt.Errorf %w wrapping).
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/swarmfabric/internal/metrics"
	"github.com/ajitpratap0/swarmfabric/internal/session"
	"github.com/ajitpratap0/swarmfabric/internal/vault"
)

// dbPool is the slice of *pgxpool.Pool the Store actually calls. It
// exists so tests can substitute a pgxmock.PgxPoolIface without the
// Store knowing the difference.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// SessionSummary is the lightweight row ListSavedSessions returns:
// enough to decide whether a saved session is a restore candidate
// without unmarshaling its full snapshot payload.
type SessionSummary struct {
	SessionID string
	Status    session.Status
	Version   int64
	SavedAt   time.Time
}

// Store is the Postgres-backed Snapshotter (session.Snapshotter).
type Store struct {
	pool           dbPool
	closer         func()
	circuitBreaker *gobreaker.CircuitBreaker
	log            zerolog.Logger
}

// New opens a connection pool, preferring Vault-issued credentials
// and falling back to DATABASE_URL, exactly as the teacher's db.New
// does.
func New(ctx context.Context, log zerolog.Logger) (*Store, error) {
	databaseURL := ""

	if vaultClient, err := vault.NewClientFromEnv(); err == nil {
		if dbConfig, err := vaultClient.GetDatabaseConfig(ctx); err == nil {
			databaseURL = dbConfig.ConnectionString()
			log.Info().Msg("database credentials loaded from Vault")
		} else {
			log.Debug().Err(err).Msg("could not load database config from Vault, falling back to env")
		}
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set and Vault credentials not available")
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool:           pool,
		closer:         pool.Close,
		circuitBreaker: newCircuitBreaker(),
		log:            log.With().Str("component", "persistence").Logger(),
	}, nil
}

// NewWithPool wires a Store around an already-constructed pool,
// mirroring the teacher's DB.SetPool test seam.
func NewWithPool(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{
		pool:           pool,
		closer:         pool.Close,
		circuitBreaker: newCircuitBreaker(),
		log:            log.With().Str("component", "persistence").Logger(),
	}
}

// newWithDBPool wires a Store around any dbPool, the seam tests use to
// inject a pgxmock.PgxPoolIface in place of a real connection.
func newWithDBPool(pool dbPool, log zerolog.Logger) *Store {
	return &Store{pool: pool, circuitBreaker: newCircuitBreaker(), log: log}
}

func (s *Store) Close() {
	if s.closer != nil {
		s.closer()
	}
}

func (s *Store) withBreaker(op func() (interface{}, error)) error {
	_, err := s.circuitBreaker.Execute(op)
	recordCircuitBreakerRequest(err)
	if err == gobreaker.ErrOpenState {
		return fmt.Errorf("persistence circuit breaker is open, service unavailable")
	}
	return err
}

// SaveSnapshot appends a new version row for the snapshot's session.
// Append-only: it never updates or deletes existing rows, matching
// §4.G's requirement that restore always sees every historical
// version.
func (s *Store) SaveSnapshot(ctx context.Context, snap session.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}

	query := `
		INSERT INTO session_snapshots (session_id, version, status, snapshot, saved_at)
		VALUES ($1, (SELECT COALESCE(MAX(version), 0) + 1 FROM session_snapshots WHERE session_id = $1), $2, $3, $4)
	`

	start := time.Now()
	err = s.withBreaker(func() (interface{}, error) {
		_, execErr := s.pool.Exec(ctx, query, snap.ID, string(snap.Status), payload, time.Now())
		return nil, execErr
	})
	metrics.RecordDatabaseQuery("save_snapshot", float64(time.Since(start).Milliseconds()))
	if err != nil {
		s.log.Error().Err(err).Str("session_id", snap.ID).Msg("failed to save session snapshot")
		return fmt.Errorf("failed to save session snapshot: %w", err)
	}
	return nil
}

// ListSavedSessions returns the latest saved version per session,
// filtered to the Active/Paused statuses per §4.G's restore-on-startup
// rule.
func (s *Store) ListSavedSessions(ctx context.Context) ([]SessionSummary, error) {
	query := `
		SELECT DISTINCT ON (session_id) session_id, version, status, saved_at
		FROM session_snapshots
		ORDER BY session_id, version DESC
	`

	start := time.Now()
	var rows pgx.Rows
	err := s.withBreaker(func() (interface{}, error) {
		r, queryErr := s.pool.Query(ctx, query)
		rows = r
		return nil, queryErr
	})
	metrics.RecordDatabaseQuery("list_saved_sessions", float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to list saved sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var summary SessionSummary
		var status string
		if err := rows.Scan(&summary.SessionID, &summary.Version, &status, &summary.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan saved session row: %w", err)
		}
		summary.Status = session.Status(status)
		if summary.Status == session.StatusActive || summary.Status == session.StatusPaused {
			out = append(out, summary)
		}
	}
	return out, rows.Err()
}

// RestoreSession loads the latest snapshot row for sessionID.
// Idempotent: calling it repeatedly for the same id returns the same
// snapshot until a new one is saved.
func (s *Store) RestoreSession(ctx context.Context, sessionID string) (*session.Snapshot, error) {
	query := `
		SELECT snapshot FROM session_snapshots
		WHERE session_id = $1
		ORDER BY version DESC
		LIMIT 1
	`

	start := time.Now()
	var payload []byte
	err := s.withBreaker(func() (interface{}, error) {
		row := s.pool.QueryRow(ctx, query, sessionID)
		return nil, row.Scan(&payload)
	})
	metrics.RecordDatabaseQuery("restore_session", float64(time.Since(start).Milliseconds()))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("no saved snapshot for session %q", sessionID)
		}
		return nil, fmt.Errorf("failed to restore session snapshot: %w", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session snapshot: %w", err)
	}
	return &snap, nil
}
