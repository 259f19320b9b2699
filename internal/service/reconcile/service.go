// Package reconcile keeps the console's resource view consistent with the
// remote deployment service. The remote list is authoritative: whenever it
// is non-empty for a kind it fully replaces the draft view, and drafts are
// shown only while no remote resource of that kind exists.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quayside/console/internal/domain"
)

// ErrRefresh marks a failed authoritative fetch. The prior known-good list
// is retained and flagged stale rather than cleared.
var ErrRefresh = errors.New("reconcile: refresh failed")

// ListAPI is the slice of the deployment service the engine reads from.
type ListAPI interface {
	ListDatabases(ctx context.Context, token, projectID string) ([]domain.RemoteResource, error)
	ListBackends(ctx context.Context, token, projectID string) ([]domain.RemoteResource, error)
	ListFrontends(ctx context.Context, token, projectID string) ([]domain.RemoteResource, error)
}

// Drafts exposes the staged resources used as the fallback display source.
type Drafts interface {
	List(projectID string, kind domain.Kind) []domain.DraftResource
}

// Publisher pushes refreshed views to interested stream subscribers.
type Publisher interface {
	Broadcast(projectID string, payload []byte)
}

type cacheKey struct {
	projectID string
	kind      domain.Kind
}

type cacheEntry struct {
	resources []domain.RemoteResource
	fetchedAt time.Time
	stale     bool
}

// Service fetches, caches and merges per-kind resource lists.
type Service struct {
	api    ListAPI
	drafts Drafts
	hub    Publisher
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

// New constructs a reconciliation engine. hub may be nil.
func New(api ListAPI, drafts Drafts, hub Publisher, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "reconcile")
	}
	return &Service{
		api:    api,
		drafts: drafts,
		hub:    hub,
		logger: logger,
		cache:  make(map[cacheKey]cacheEntry),
	}
}

// RefreshKind fetches the authoritative list for one kind. On failure any
// cached list is marked stale and kept; the error is returned to the caller.
func (s *Service) RefreshKind(ctx context.Context, token, projectID string, kind domain.Kind) error {
	var (
		resources []domain.RemoteResource
		err       error
	)
	switch kind {
	case domain.KindDatabase:
		resources, err = s.api.ListDatabases(ctx, token, projectID)
	case domain.KindBackend:
		resources, err = s.api.ListBackends(ctx, token, projectID)
	case domain.KindFrontend:
		resources, err = s.api.ListFrontends(ctx, token, projectID)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrRefresh, kind)
	}

	key := cacheKey{projectID: projectID, kind: kind}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if entry, ok := s.cache[key]; ok {
			entry.stale = true
			s.cache[key] = entry
		}
		if s.logger != nil {
			s.logger.Warn("resource list fetch failed", "project_id", projectID, "kind", kind, "error", err)
		}
		return fmt.Errorf("%w: %s: %v", ErrRefresh, kind, err)
	}
	s.cache[key] = cacheEntry{
		resources: resources,
		fetchedAt: time.Now().UTC(),
	}
	return nil
}

// Refresh fetches all three kinds and publishes the resulting view. Partial
// failures are joined so the caller can surface them while the view keeps
// whatever known-good data remains.
func (s *Service) Refresh(ctx context.Context, token, projectID string) error {
	var errs []error
	for _, kind := range domain.Kinds {
		if err := s.RefreshKind(ctx, token, projectID, kind); err != nil {
			errs = append(errs, err)
		}
	}
	s.publish(projectID)
	return errors.Join(errs...)
}

// View assembles the merged resource view for a project. Remote lists take
// precedence per kind when non-empty; draft entries fill in otherwise.
func (s *Service) View(projectID string) domain.ProjectView {
	view := domain.ProjectView{ProjectID: projectID}
	view.Databases = s.kindView(projectID, domain.KindDatabase)
	view.Backends = s.kindView(projectID, domain.KindBackend)
	view.Frontends = s.kindView(projectID, domain.KindFrontend)
	return view
}

func (s *Service) kindView(projectID string, kind domain.Kind) domain.KindView {
	s.mu.RLock()
	entry, ok := s.cache[cacheKey{projectID: projectID, kind: kind}]
	s.mu.RUnlock()

	// Views are browser-facing (HTTP responses and ws broadcasts), so
	// credentials are blanked here. Remotes and Lookup keep the full
	// descriptors for binding resolution.
	kv := domain.KindView{Kind: kind}
	if ok && len(entry.resources) > 0 {
		kv.Stale = entry.stale
		kv.Resources = make([]domain.ResourceView, 0, len(entry.resources))
		for i := range entry.resources {
			remote := entry.resources[i].Redacted()
			kv.Resources = append(kv.Resources, domain.ResourceView{Remote: &remote})
		}
		return kv
	}

	drafts := s.drafts.List(projectID, kind)
	kv.Stale = ok && entry.stale
	kv.Resources = make([]domain.ResourceView, 0, len(drafts))
	for i := range drafts {
		d := drafts[i].Redacted()
		kv.Resources = append(kv.Resources, domain.ResourceView{Draft: &d})
	}
	return kv
}

// Remotes returns the cached authoritative list for a kind.
func (s *Service) Remotes(projectID string, kind domain.Kind) []domain.RemoteResource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[cacheKey{projectID: projectID, kind: kind}]
	if !ok {
		return nil
	}
	return append([]domain.RemoteResource(nil), entry.resources...)
}

// Lookup finds a cached remote resource by id across all kinds.
func (s *Service) Lookup(projectID, resourceID string) (domain.RemoteResource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, kind := range domain.Kinds {
		entry, ok := s.cache[cacheKey{projectID: projectID, kind: kind}]
		if !ok {
			continue
		}
		for _, res := range entry.resources {
			if res.ID == resourceID {
				return res, true
			}
		}
	}
	return domain.RemoteResource{}, false
}

// Forget drops all cached state for a project, e.g. after project deletion.
func (s *Service) Forget(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range domain.Kinds {
		delete(s.cache, cacheKey{projectID: projectID, kind: kind})
	}
}

func (s *Service) publish(projectID string) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(s.View(projectID))
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to encode project view", "project_id", projectID, "error", err)
		}
		return
	}
	s.hub.Broadcast(projectID, payload)
}
