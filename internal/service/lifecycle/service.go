// Package lifecycle issues start/stop/delete commands against deployed
// resources. Transitions are checked against the state machine before any
// network call, and operations on the same resource id are serialized by a
// keyed lock so a start and a delete can never overlap.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/quayside/console/internal/domain"
)

var (
	// ErrOperationInFlight rejects a second lifecycle operation on a
	// resource while an earlier one has not finished.
	ErrOperationInFlight = errors.New("lifecycle: an operation is already in flight for this resource")

	// ErrUnknownResource means the id is absent from the reconciled view.
	ErrUnknownResource = errors.New("lifecycle: resource not found")
)

// API is the slice of the deployment service the controller commands.
type API interface {
	StartResource(ctx context.Context, token, projectID, resourceID string) error
	StopResource(ctx context.Context, token, projectID, resourceID string) error
	DeleteResource(ctx context.Context, token, projectID, resourceID string) error
}

// StatusSource resolves a resource id to its last reconciled descriptor.
type StatusSource interface {
	Lookup(projectID, resourceID string) (domain.RemoteResource, bool)
}

// Refresher re-fetches the authoritative list after a mutation.
type Refresher interface {
	RefreshKind(ctx context.Context, token, projectID string, kind domain.Kind) error
}

// DraftPruner removes a staged draft after its remote counterpart is gone.
type DraftPruner interface {
	RemoveByName(projectID string, kind domain.Kind, name string) bool
}

// Service is the lifecycle controller. It never updates local state itself;
// every successful command triggers the authoritative refresh instead.
type Service struct {
	api       API
	statuses  StatusSource
	refresher Refresher
	drafts    DraftPruner
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New returns a lifecycle controller.
func New(api API, statuses StatusSource, refresher Refresher, drafts DraftPruner, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "lifecycle")
	}
	return &Service{
		api:       api,
		statuses:  statuses,
		refresher: refresher,
		drafts:    drafts,
		logger:    logger,
		inflight:  make(map[string]struct{}),
	}
}

// Start requests a transition toward running. Valid only from paused or
// error; the call is rejected locally otherwise and never reaches the wire.
func (s *Service) Start(ctx context.Context, token, projectID, resourceID string) error {
	return s.run(ctx, token, projectID, resourceID, domain.OpStart)
}

// Stop requests a pause. Valid only from running; a pending or building
// resource cannot be paused.
func (s *Service) Stop(ctx context.Context, token, projectID, resourceID string) error {
	return s.run(ctx, token, projectID, resourceID, domain.OpStop)
}

// Delete removes a resource. Valid from any non-deleted state. The matching
// draft entry, if any, is pruned by name (drafts carry no id).
func (s *Service) Delete(ctx context.Context, token, projectID, resourceID string) error {
	return s.run(ctx, token, projectID, resourceID, domain.OpDelete)
}

func (s *Service) run(ctx context.Context, token, projectID, resourceID string, op domain.Operation) error {
	if !s.acquire(resourceID) {
		return ErrOperationInFlight
	}
	defer s.release(resourceID)

	res, ok := s.statuses.Lookup(projectID, resourceID)
	if !ok {
		return ErrUnknownResource
	}
	if _, err := domain.Transition(res.Status, op); err != nil {
		return err
	}

	var err error
	switch op {
	case domain.OpStart:
		err = s.api.StartResource(ctx, token, projectID, resourceID)
	case domain.OpStop:
		err = s.api.StopResource(ctx, token, projectID, resourceID)
	case domain.OpDelete:
		err = s.api.DeleteResource(ctx, token, projectID, resourceID)
	}
	if err != nil {
		if s.logger != nil {
			s.logger.Error("lifecycle operation failed", "op", op, "project_id", projectID, "resource_id", resourceID, "error", err)
		}
		return err
	}

	if op == domain.OpDelete && s.drafts != nil {
		s.drafts.RemoveByName(projectID, res.Kind, res.Name)
	}
	if s.logger != nil {
		s.logger.Info("lifecycle operation accepted", "op", op, "project_id", projectID, "resource_id", resourceID, "kind", res.Kind)
	}

	// The command only requests the transition; confirmation comes from the
	// authoritative list. A failed refresh leaves the view flagged stale.
	if rerr := s.refresher.RefreshKind(ctx, token, projectID, res.Kind); rerr != nil {
		if s.logger != nil {
			s.logger.Warn("refresh after lifecycle operation failed", "op", op, "project_id", projectID, "kind", res.Kind, "error", rerr)
		}
	}
	return nil
}

func (s *Service) acquire(resourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[resourceID]; busy {
		return false
	}
	s.inflight[resourceID] = struct{}{}
	return true
}

func (s *Service) release(resourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, resourceID)
}
