package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/swarmfabric/internal/eventbus"
	"github.com/ajitpratap0/swarmfabric/internal/session"
)

// TopicSessionRecreate is published once per restored session on
// startup; the session manager subscribes and rebuilds in-memory
// state from the recovered snapshot.
const TopicSessionRecreate = "swarm.session.recreate"

// RecreateEvent is the payload published on TopicSessionRecreate.
type RecreateEvent struct {
	Snapshot session.Snapshot
}

// SnapshotStore is the subset of Store's surface RestoreAll depends
// on, narrowed to an interface so the restore flow is testable
// without a live Postgres instance.
type SnapshotStore interface {
	ListSavedSessions(ctx context.Context) ([]SessionSummary, error)
	RestoreSession(ctx context.Context, sessionID string) (*session.Snapshot, error)
}

// RestoreAll lists every saved session in {Active,Paused} and
// publishes a recreate event for each, per §4.G. Restore is
// idempotent: running it twice republishes the same snapshots, and
// the session manager's JoinSession/CreateSession paths treat a
// rebuilt session identically to a freshly created one, with
// participants starting Disconnected until they rejoin.
func RestoreAll(ctx context.Context, store SnapshotStore, bus eventbus.Bus, log zerolog.Logger) (int, error) {
	summaries, err := store.ListSavedSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list saved sessions: %w", err)
	}

	restored := 0
	for _, summary := range summaries {
		snap, err := store.RestoreSession(ctx, summary.SessionID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", summary.SessionID).Msg("failed to restore saved session, skipping")
			continue
		}

		for _, p := range snap.Participants {
			p.ConnState = session.ConnDisconnected
		}

		if err := bus.Publish(ctx, TopicSessionRecreate, RecreateEvent{Snapshot: *snap}); err != nil {
			log.Warn().Err(err).Str("session_id", summary.SessionID).Msg("failed to publish session recreate event")
			continue
		}
		restored++
	}

	log.Info().Int("restored", restored).Int("candidates", len(summaries)).Msg("session restore complete")
	return restored, nil
}

// SubscribeSessionRestore wires the session manager's rebuild path to
// TopicSessionRecreate, letting RestoreAll and the manager live in
// separate packages without either importing the other directly
// (session never imports persistence).
func SubscribeSessionRestore(bus eventbus.Bus, rebuild func(snap session.Snapshot)) (eventbus.Subscription, error) {
	return bus.Subscribe(TopicSessionRecreate, func(ctx context.Context, evt eventbus.Event) error {
		var payload RecreateEvent
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal session recreate event: %w", err)
		}
		rebuild(payload.Snapshot)
		return nil
	})
}
