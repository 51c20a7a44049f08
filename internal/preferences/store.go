// Package preferences keeps the hidden report sections of one user for one entity.
// Mutations are applied in memory first and persisted in the background; a failed
// write is logged and counted but never rolled back.
package preferences

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/core/ports"
	"github.com/lueurxax/artist-pulse/internal/platform/observability"
)

const (
	// DefaultWriteTimeout bounds one background upsert.
	DefaultWriteTimeout = 5 * time.Second

	writeStatusOK    = "ok"
	writeStatusError = "error"
)

// Store is the hidden-section set of one (user, entity) pair.
type Store struct {
	repo         ports.PreferenceRepository
	userID       string
	entityID     string
	logger       *zerolog.Logger
	writeTimeout time.Duration

	mu        sync.RWMutex
	hidden    map[string]struct{}
	version   uint64
	persisted uint64
	lastErr   error

	writeMu sync.Mutex
	pending sync.WaitGroup
}

// normalizeIDs returns the canonical UUID form of userID and the trimmed entityID.
func normalizeIDs(userID, entityID string) (string, string, error) {
	uid, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return "", "", fmt.Errorf("user id %q: %w", userID, coreerrors.ErrInvalidID)
	}

	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return "", "", fmt.Errorf("entity id: %w", coreerrors.ErrInvalidInput)
	}

	return uid.String(), entityID, nil
}

// NewStore creates an empty store. userID must be a UUID.
func NewStore(repo ports.PreferenceRepository, userID, entityID string, logger *zerolog.Logger) (*Store, error) {
	userID, entityID, err := normalizeIDs(userID, entityID)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	l := logger.With().Str("user_id", userID).Str("entity_id", entityID).Logger()

	return &Store{
		repo:         repo,
		userID:       userID,
		entityID:     entityID,
		logger:       &l,
		writeTimeout: DefaultWriteTimeout,
		hidden:       make(map[string]struct{}),
	}, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Reload replaces the in-memory set with the stored one, after pending writes finish.
// A missing row is the empty set.
func (s *Store) Reload(ctx context.Context) error {
	s.Wait()

	keys, err := s.repo.GetHiddenSections(ctx, s.userID, s.entityID)
	if err != nil {
		return fmt.Errorf("load hidden sections: %w", err)
	}

	hidden := make(map[string]struct{}, len(keys))

	for _, k := range keys {
		if k = normalizeKey(k); k != "" {
			hidden[k] = struct{}{}
		}
	}

	s.mu.Lock()
	s.hidden = hidden
	s.version++
	s.persisted = s.version
	s.lastErr = nil
	s.mu.Unlock()

	return nil
}

// ToggleSection flips key in the hidden set and returns whether it is now visible.
func (s *Store) ToggleSection(key string) bool {
	key = normalizeKey(key)
	if key == "" {
		return true
	}

	s.mu.Lock()

	_, hidden := s.hidden[key]
	if hidden {
		delete(s.hidden, key)
	} else {
		s.hidden[key] = struct{}{}
	}

	s.version++
	s.mu.Unlock()

	s.persist()

	return hidden
}

// ResetToDefault clears the hidden set and removes the stored row.
func (s *Store) ResetToDefault() {
	s.mu.Lock()
	s.hidden = make(map[string]struct{})
	s.version++
	s.mu.Unlock()

	s.persist()
}

// IsSectionVisible reports whether key is not hidden.
func (s *Store) IsSectionVisible(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, hidden := s.hidden[normalizeKey(key)]

	return !hidden
}

// HiddenSections returns the hidden keys, sorted.
func (s *Store) HiddenSections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedLocked()
}

// LastError returns the error of the latest failed write, cleared by the next success.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastErr
}

// Wait blocks until every background write has finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

func (s *Store) sortedLocked() []string {
	keys := make([]string, 0, len(s.hidden))
	for k := range s.hidden {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}

func (s *Store) persist() {
	s.pending.Add(1)

	go func() {
		defer s.pending.Done()

		s.write()
	}()
}

// write stores the latest in-memory set, deleting the row when the set is
// empty. Writes are serialized, and a write finding its version already
// stored does nothing.
func (s *Store) write() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	version := s.version
	skip := version == s.persisted
	keys := s.sortedLocked()
	s.mu.RUnlock()

	if skip {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	var err error
	if len(keys) == 0 {
		err = s.repo.DeleteHiddenSections(ctx, s.userID, s.entityID)
	} else {
		err = s.repo.UpsertHiddenSections(ctx, s.userID, s.entityID, keys)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.lastErr = err
		observability.PreferenceWrites.WithLabelValues(writeStatusError).Inc()
		s.logger.Warn().Err(err).Strs("hidden_sections", keys).Msg("failed to persist hidden sections, keeping local state")

		return
	}

	s.lastErr = nil

	if version > s.persisted {
		s.persisted = version
	}

	observability.PreferenceWrites.WithLabelValues(writeStatusOK).Inc()
}
