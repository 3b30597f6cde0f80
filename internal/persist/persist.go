// Package persist implements session transcript persistence,
// repurposing internal/storage's atomic temp-file+rename JSON writer and
// flock-based locking for the YYYY-MM-DD_<id-prefix8>.json snapshot naming
// and field set: id, title, messages, system_prompt, provider_type, model,
// created_at, updated_at.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentcore-ai/agentcore/internal/storage"
	"github.com/agentcore-ai/agentcore/pkg/types"
)

const transcriptsDir = "transcripts"

// Snapshot is a point-in-time, flattened copy of a session's transcript —
// distinct from the live per-message/per-part storage layout the session
// package reads and writes during an active session.
type Snapshot struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Messages     []types.Message `json:"messages"`
	SystemPrompt string          `json:"system_prompt"`
	ProviderType string          `json:"provider_type"`
	Model        string          `json:"model"`
	CreatedAt    int64           `json:"created_at"`
	UpdatedAt    int64           `json:"updated_at"`
}

// Store persists and retrieves Snapshots through a storage.Storage.
type Store struct {
	storage *storage.Storage
}

// New creates a Store backed by store.
func New(store *storage.Storage) *Store {
	return &Store{storage: store}
}

// filename builds the YYYY-MM-DD_<id-prefix8>.json name (sans extension,
// which storage.Storage appends) from a snapshot's id and creation time.
func filename(id string, created time.Time) string {
	prefix := id
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s_%s", created.UTC().Format("2006-01-02"), prefix)
}

// Save writes snap to <basePath>/transcripts/YYYY-MM-DD_<id-prefix8>.json.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	name := filename(snap.ID, time.UnixMilli(snap.CreatedAt))
	return s.storage.Put(ctx, []string{transcriptsDir, name}, snap)
}

// FromSession builds a Snapshot for sessionID by reading the session
// record and every message and its parts from store, the way
// internal/session.Processor's loadMessages/loadParts do for the live
// completion request.
func FromSession(ctx context.Context, store *storage.Storage, sessionID, systemPrompt, providerType, model string) (*Snapshot, error) {
	var sess types.Session
	if err := store.Get(ctx, []string{"session", sessionID}, &sess); err != nil {
		return nil, fmt.Errorf("persist: load session %s: %w", sessionID, err)
	}

	var messages []types.Message
	err := store.Scan(ctx, []string{"message", sessionID}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		messages = append(messages, msg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist: load messages for %s: %w", sessionID, err)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].Time.Created < messages[j].Time.Created })

	updated := sess.Time.Created
	if len(messages) > 0 {
		last := messages[len(messages)-1]
		if last.Time.Updated != nil {
			updated = *last.Time.Updated
		} else {
			updated = last.Time.Created
		}
	}

	return &Snapshot{
		ID:           sess.ID,
		Title:        sess.Title,
		Messages:     messages,
		SystemPrompt: systemPrompt,
		ProviderType: providerType,
		Model:        model,
		CreatedAt:    sess.Time.Created,
		UpdatedAt:    updated,
	}, nil
}

// SaveSession is a convenience wrapper combining FromSession and Save — the
// shape internal/sessionmgr calls when a session's input channel closes and
// its SessionConfig asked for persistence.
func (s *Store) SaveSession(ctx context.Context, sessionID, systemPrompt, providerType, model string) error {
	snap, err := FromSession(ctx, s.storage, sessionID, systemPrompt, providerType, model)
	if err != nil {
		return err
	}
	return s.Save(ctx, snap)
}

// List returns the names (without extension) of every saved snapshot.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.storage.List(ctx, []string{transcriptsDir})
}

// Load reads back a snapshot by its stored name (as returned by List).
func (s *Store) Load(ctx context.Context, name string) (*Snapshot, error) {
	var snap Snapshot
	if err := s.storage.Get(ctx, []string{transcriptsDir, name}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// CleanupOlderThan deletes snapshots whose filename date prefix is older
// than maxAge and returns how many were removed. Files whose name doesn't
// start with a recognizable YYYY-MM-DD prefix are left alone rather than
// risk deleting something this package didn't write.
func (s *Store) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	names, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, name := range names {
		datePart, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		created, err := time.Parse("2006-01-02", datePart)
		if err != nil {
			continue
		}
		if created.Before(cutoff) {
			if err := s.storage.Delete(ctx, []string{transcriptsDir, name}); err != nil {
				return removed, fmt.Errorf("persist: delete %s: %w", name, err)
			}
			removed++
		}
	}
	return removed, nil
}
