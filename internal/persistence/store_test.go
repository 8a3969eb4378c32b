package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/swarmfabric/internal/session"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newWithDBPool(mock, zerolog.Nop()), mock
}

func TestStore_SaveSnapshot(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	snap := session.Snapshot{ID: "sess-1", Status: session.StatusActive}

	mock.ExpectExec("INSERT INTO session_snapshots").
		WithArgs(snap.ID, string(snap.Status), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.SaveSnapshot(ctx, snap)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveSnapshot_QueryError(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	snap := session.Snapshot{ID: "sess-err", Status: session.StatusActive}

	mock.ExpectExec("INSERT INTO session_snapshots").
		WillReturnError(errors.New("connection reset"))

	err := store.SaveSnapshot(ctx, snap)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListSavedSessions(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"session_id", "version", "status", "saved_at"}).
		AddRow("sess-1", int64(3), string(session.StatusActive), now).
		AddRow("sess-2", int64(1), string(session.StatusClosed), now)

	mock.ExpectQuery("SELECT DISTINCT ON").WillReturnRows(rows)

	out, err := store.ListSavedSessions(ctx)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	// sess-2 is Closed and must be filtered out of restore candidates.
	require.Len(t, out, 1)
	require.Equal(t, "sess-1", out[0].SessionID)
	require.Equal(t, int64(3), out[0].Version)
}

func TestStore_RestoreSession(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	payload := []byte(`{"id":"sess-1","status":"Active"}`)
	rows := pgxmock.NewRows([]string{"snapshot"}).AddRow(payload)

	mock.ExpectQuery("SELECT snapshot FROM session_snapshots").
		WithArgs("sess-1").
		WillReturnRows(rows)

	snap, err := store.RestoreSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, "sess-1", snap.ID)
	require.Equal(t, session.StatusActive, snap.Status)
}

func TestStore_RestoreSession_NoRows(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT snapshot FROM session_snapshots").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.RestoreSession(ctx, "missing")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
