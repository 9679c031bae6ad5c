package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSnapshotNotFound is returned by a Store that holds no snapshot for a stack.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is the full set of records of one stack captured at FetchedAt.
type Snapshot struct {
	ID        uuid.UUID          `json:"id"`
	Stack     string             `json:"stack"`
	Region    string             `json:"region"`
	FetchedAt time.Time          `json:"fetched_at"`
	Records   []DeploymentRecord `json:"records"`
}

// Store persists snapshots between invocations.
type Store interface {
	// Latest returns the most recent snapshot for stack in region, or ErrSnapshotNotFound.
	Latest(ctx context.Context, stack, region string) (*Snapshot, error)
	Save(ctx context.Context, snapshot *Snapshot) error
}

// CachingProvider serves records from a Store while they are younger than TTL and
// refreshes them from Live otherwise. Store failures degrade to a live fetch.
type CachingProvider struct {
	Live   Provider
	Store  Store
	Region string
	TTL    time.Duration

	logger *zap.Logger
	now    func() time.Time
}

// NewCachingProvider wraps live with a snapshot cache.
func NewCachingProvider(live Provider, store Store, region string, ttl time.Duration, logger *zap.Logger) *CachingProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingProvider{
		Live:   live,
		Store:  store,
		Region: region,
		TTL:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Fetch implements Provider.
func (p *CachingProvider) Fetch(ctx context.Context, stack string, logicalIDs ...string) ([]DeploymentRecord, error) {
	snap, err := p.Store.Latest(ctx, stack, p.Region)
	switch {
	case err == nil && p.fresh(snap):
		p.logger.Debug("Stack metadata cache hit",
			zap.String("stack", stack),
			zap.Stringer("snapshot", snap.ID),
			zap.Time("fetched_at", snap.FetchedAt))
		return filter(snap.Records, logicalIDs), nil
	case err == nil:
		p.logger.Debug("Stack metadata cache stale", zap.String("stack", stack), zap.Time("fetched_at", snap.FetchedAt))
	case errors.Is(err, ErrSnapshotNotFound):
		p.logger.Debug("Stack metadata cache miss", zap.String("stack", stack))
	default:
		p.logger.Warn("Stack metadata cache unavailable", zap.String("stack", stack), zap.Error(err))
	}

	records, err := p.Live.Fetch(ctx, stack)
	if err != nil {
		return nil, fmt.Errorf("live fetch: %w", err)
	}

	snap = &Snapshot{
		ID:        uuid.New(),
		Stack:     stack,
		Region:    p.Region,
		FetchedAt: p.now().UTC(),
		Records:   records,
	}
	if err := p.Store.Save(ctx, snap); err != nil {
		p.logger.Warn("Failed to save stack metadata snapshot", zap.String("stack", stack), zap.Error(err))
	}

	return filter(records, logicalIDs), nil
}

func (p *CachingProvider) fresh(snap *Snapshot) bool {
	return p.TTL > 0 && p.now().Sub(snap.FetchedAt) < p.TTL
}
