package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/appdock/apphub-backend/internal/platform/logger"
	"github.com/appdock/apphub-backend/internal/repos"
	"github.com/appdock/apphub-backend/internal/types"
)

// Registry is the read side of the app catalog: a short-TTL listing
// cache with singleflight-collapsed refreshes. It is never consulted
// for uniqueness or mutation decisions; those always hit the
// repository directly.
type Registry interface {
	ListApps(ctx context.Context) ([]*types.AppRecord, error)
	GetApp(ctx context.Context, id uuid.UUID) (*types.AppRecord, error)
	Invalidate()
}

type registry struct {
	log  *logger.Logger
	repo repos.AppRecordRepo
	ttl  time.Duration

	sf singleflight.Group

	mu        sync.RWMutex
	cached    []*types.AppRecord
	fetchedAt time.Time
}

func NewRegistry(log *logger.Logger, repo repos.AppRecordRepo, ttl time.Duration) Registry {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &registry{
		log:  log.With("service", "Registry"),
		repo: repo,
		ttl:  ttl,
	}
}

func (r *registry) ListApps(ctx context.Context) ([]*types.AppRecord, error) {
	r.mu.RLock()
	if r.cached != nil && time.Since(r.fetchedAt) < r.ttl {
		records := r.cached
		r.mu.RUnlock()
		return records, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.sf.Do("list", func() (any, error) {
		records, err := r.repo.List(ctx, nil)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cached = records
		r.fetchedAt = time.Now()
		r.mu.Unlock()
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*types.AppRecord), nil
}

// GetApp is always authoritative; single-record reads feed mutation
// decisions and must not see stale cache entries.
func (r *registry) GetApp(ctx context.Context, id uuid.UUID) (*types.AppRecord, error) {
	return r.repo.GetByID(ctx, nil, id)
}

func (r *registry) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.fetchedAt = time.Time{}
	r.mu.Unlock()
}
