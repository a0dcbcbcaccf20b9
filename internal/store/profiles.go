package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/gradewizard/internal/model"
)

// ProfilesKey holds the profile list.
const ProfilesKey = "gradewizard.profiles.v1"

// Profiles is the locally cached profile list, kept in insertion order.
type Profiles struct {
	kv KV
	mu sync.Mutex
}

// NewProfiles returns a repository over kv.
func NewProfiles(kv KV) *Profiles {
	return &Profiles{kv: kv}
}

// List returns all profiles.
func (p *Profiles) List(ctx context.Context) ([]model.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(ctx)
}

// Get returns the profile with id.
func (p *Profiles) Get(ctx context.Context, id string) (model.Profile, error) {
	all, err := p.List(ctx)
	if err != nil {
		return model.Profile{}, err
	}
	i := slices.IndexFunc(all, func(x model.Profile) bool { return x.ID == id })
	if i < 0 {
		return model.Profile{}, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return all[i], nil
}

// Put replaces the profile with the same id or appends it. A profile
// without an id gets a new one. It returns the stored profile.
func (p *Profiles) Put(ctx context.Context, prof model.Profile) (model.Profile, error) {
	if prof.Name == "" {
		return model.Profile{}, fmt.Errorf("%w: profile name is required", ErrInvalid)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	all, err := p.load(ctx)
	if err != nil {
		return model.Profile{}, err
	}
	if prof.ID == "" {
		prof.ID = uuid.NewString()
	}
	if i := slices.IndexFunc(all, func(x model.Profile) bool { return x.ID == prof.ID }); i >= 0 {
		all[i] = prof
	} else {
		all = append(all, prof)
	}
	return prof, p.write(ctx, all)
}

// Replace overwrites the whole list, e.g. after fetching it from the service.
func (p *Profiles) Replace(ctx context.Context, all []model.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(ctx, all)
}

// Delete removes the profile with id.
func (p *Profiles) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	all, err := p.load(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(all, func(x model.Profile) bool { return x.ID == id })
	if i < 0 {
		return fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return p.write(ctx, slices.Delete(all, i, i+1))
}

func (p *Profiles) load(ctx context.Context) ([]model.Profile, error) {
	raw, err := p.kv.Get(ctx, ProfilesKey)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	all := []model.Profile{}
	if len(raw) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	return all, nil
}

func (p *Profiles) write(ctx context.Context, all []model.Profile) error {
	if all == nil {
		all = []model.Profile{}
	}
	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}
	return p.kv.Set(ctx, ProfilesKey, raw)
}
