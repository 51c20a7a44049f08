package mocks

import (
	"context"
	"sync"
)

// PreferenceRepository is a thread-safe in-memory implementation of ports.PreferenceRepository.
type PreferenceRepository struct {
	mu     sync.Mutex
	rows   map[string][]string
	writes int

	// GetFn allows overriding GetHiddenSections behavior.
	GetFn func(ctx context.Context, userID, entityID string) ([]string, error)

	// UpsertFn allows overriding UpsertHiddenSections behavior.
	UpsertFn func(ctx context.Context, userID, entityID string, keys []string) error

	// DeleteFn allows overriding DeleteHiddenSections behavior.
	DeleteFn func(ctx context.Context, userID, entityID string) error
}

// NewPreferenceRepository creates an empty mock preference repository.
func NewPreferenceRepository() *PreferenceRepository {
	return &PreferenceRepository{rows: make(map[string][]string)}
}

func prefKey(userID, entityID string) string {
	return userID + "/" + entityID
}

// Set stores a row directly, bypassing write accounting.
func (p *PreferenceRepository) Set(userID, entityID string, keys ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rows[prefKey(userID, entityID)] = append([]string(nil), keys...)
}

// Row returns the stored keys and whether a row exists.
func (p *PreferenceRepository) Row(userID, entityID string) ([]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys, ok := p.rows[prefKey(userID, entityID)]

	return append([]string(nil), keys...), ok
}

// Writes returns the number of successful upserts and deletes.
func (p *PreferenceRepository) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.writes
}

func (p *PreferenceRepository) GetHiddenSections(ctx context.Context, userID, entityID string) ([]string, error) {
	if p.GetFn != nil {
		return p.GetFn(ctx, userID, entityID)
	}

	keys, _ := p.Row(userID, entityID)

	return keys, nil
}

func (p *PreferenceRepository) UpsertHiddenSections(ctx context.Context, userID, entityID string, keys []string) error {
	if p.UpsertFn != nil {
		if err := p.UpsertFn(ctx, userID, entityID, keys); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.rows[prefKey(userID, entityID)] = append([]string(nil), keys...)
	p.writes++

	return nil
}

func (p *PreferenceRepository) DeleteHiddenSections(ctx context.Context, userID, entityID string) error {
	if p.DeleteFn != nil {
		if err := p.DeleteFn(ctx, userID, entityID); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.rows, prefKey(userID, entityID))
	p.writes++

	return nil
}
