// internal/activity/activity.go
package activity

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinicsync/internal/localstore"
	"clinicsync/internal/logger"
	"clinicsync/internal/model"
)

// Log is the locally persisted activity trail: append-only, newest first,
// fully independent of the remote backend. Edit and delete of single entries
// exist for audit corrections; the caller is responsible for restricting
// them to elevated roles via the authorization engine.
type Log struct {
	store *localstore.Store

	mu      sync.Mutex
	entries []model.ActivityLog
}

// NewLog loads any persisted entries from the local store. Timestamps come
// back as real time.Time values via the RFC3339 JSON round trip.
func NewLog(store *localstore.Store) (*Log, error) {
	l := &Log{store: store}

	found, err := store.LoadJSON(localstore.KeyActivityLogs, &l.entries)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity logs: %w", err)
	}
	if found {
		logger.LogInfo("Loaded %d activity log entries", len(l.entries))
	}
	return l, nil
}

// Add prepends a new entry. It always succeeds from the caller's point of
// view: a local persistence failure is logged but the entry stays in memory.
func (l *Log) Add(action, details, user string) model.ActivityLog {
	entry := model.ActivityLog{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Action:    action,
		Details:   details,
		User:      user,
	}

	l.mu.Lock()
	l.entries = append([]model.ActivityLog{entry}, l.entries...)
	l.persistLocked()
	l.mu.Unlock()

	return entry
}

// UpdateDetails edits a single entry's details field, an audit correction,
// not a rewrite of history.
func (l *Log) UpdateDetails(id, details string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries[i].Details = details
			l.persistLocked()
			return nil
		}
	}
	return fmt.Errorf("activity log entry %s not found", id)
}

// Delete removes a single entry.
func (l *Log) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			l.persistLocked()
			return nil
		}
	}
	return fmt.Errorf("activity log entry %s not found", id)
}

// Entries returns a snapshot, newest first.
func (l *Log) Entries() []model.ActivityLog {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.ActivityLog, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) persistLocked() {
	if err := l.store.SaveJSON(localstore.KeyActivityLogs, l.entries); err != nil {
		logger.LogError("Failed to persist activity logs: %v", err)
	}
}
