// Package wizard drives the multi-step new-project flow: step navigation
// gated by per-step validation, and the final submission that turns staged
// drafts into deployed resources.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quayside/console/internal/domain"
)

// Step identifies one wizard screen.
type Step string

const (
	StepDetails   Step = "details"
	StepDatabases Step = "databases"
	StepBackends  Step = "backends"
	StepFrontends Step = "frontends"
	StepReview    Step = "review"
)

var stepOrder = []Step{StepDetails, StepDatabases, StepBackends, StepFrontends, StepReview}

var (
	// ErrStepBlocked means the current step's staged content does not pass
	// its gate and forward navigation is refused.
	ErrStepBlocked = errors.New("wizard: step requirements not met")

	// ErrLastStep means there is no step after review.
	ErrLastStep = errors.New("wizard: already at the last step")
)

// maxConcurrentDeploys caps parallel backend/frontend submissions during
// the final submit.
const maxConcurrentDeploys = 4

// Dispatcher submits one draft to the deployment service.
type Dispatcher interface {
	Deploy(ctx context.Context, token, projectID string, draft domain.DraftResource, databases []domain.RemoteResource) (domain.RemoteResource, error)
}

// Drafts is the staging area the wizard reads and clears.
type Drafts interface {
	Details(projectID string) (name, description string)
	List(projectID string, kind domain.Kind) []domain.DraftResource
	RemoveByName(projectID string, kind domain.Kind, name string) bool
	Clear(projectID string)
}

// Refresher re-fetches the authoritative lists after submission.
type Refresher interface {
	Refresh(ctx context.Context, token, projectID string) error
}

// DatabaseIndex exposes already-deployed databases for binding resolution.
type DatabaseIndex interface {
	Remotes(projectID string, kind domain.Kind) []domain.RemoteResource
}

// Service sequences wizard steps per project session.
type Service struct {
	dispatcher Dispatcher
	drafts     Drafts
	refresher  Refresher
	databases  DatabaseIndex
	logger     *slog.Logger

	mu    sync.Mutex
	steps map[string]int
}

// New returns a wizard service.
func New(dispatcher Dispatcher, drafts Drafts, refresher Refresher, databases DatabaseIndex, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "wizard")
	}
	return &Service{
		dispatcher: dispatcher,
		drafts:     drafts,
		refresher:  refresher,
		databases:  databases,
		logger:     logger,
		steps:      make(map[string]int),
	}
}

// Current returns the active step for a project session.
func (s *Service) Current(projectID string) Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stepOrder[s.steps[projectID]]
}

// Next advances one step after checking the current step's gate. Staged
// drafts survive navigation in either direction.
func (s *Service) Next(projectID string) (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.steps[projectID]
	if idx >= len(stepOrder)-1 {
		return stepOrder[idx], ErrLastStep
	}
	if err := s.gate(projectID, stepOrder[idx]); err != nil {
		return stepOrder[idx], err
	}
	s.steps[projectID] = idx + 1
	return stepOrder[idx+1], nil
}

// Back moves one step backward. Always allowed.
func (s *Service) Back(projectID string) Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.steps[projectID]
	if idx > 0 {
		s.steps[projectID] = idx - 1
	}
	return stepOrder[s.steps[projectID]]
}

func (s *Service) gate(projectID string, step Step) error {
	switch step {
	case StepDetails:
		name, _ := s.drafts.Details(projectID)
		if name == "" {
			return fmt.Errorf("%w: project name is required", ErrStepBlocked)
		}
	case StepBackends:
		for _, draft := range s.drafts.List(projectID, domain.KindBackend) {
			if draft.App == nil || draft.App.Binding == nil {
				return fmt.Errorf("%w: backend %q has no database binding", ErrStepBlocked, draft.Name)
			}
			if err := draft.App.Binding.Validate(); err != nil {
				return fmt.Errorf("%w: backend %q: %v", ErrStepBlocked, draft.Name, err)
			}
		}
	}
	return nil
}

// Failure records one draft the deployment service rejected during submit.
type Failure struct {
	Kind    domain.Kind `json:"kind"`
	Name    string      `json:"name"`
	Message string      `json:"message"`
}

// SubmitResult reports the outcome of a wizard submission.
type SubmitResult struct {
	Deployed []domain.RemoteResource `json:"deployed"`
	Failed   []Failure               `json:"failed"`
}

// Submit deploys every staged draft. Databases go first and sequentially so
// their endpoints can satisfy backend reference bindings; backends and
// frontends then deploy concurrently. Drafts that deployed successfully are
// removed; rejected ones stay staged for an explicit retry or discard. On a
// clean run the whole session is cleared and the step resets.
func (s *Service) Submit(ctx context.Context, token, projectID string) (SubmitResult, error) {
	var result SubmitResult

	deployedDBs := s.databases.Remotes(projectID, domain.KindDatabase)
	for _, draft := range s.drafts.List(projectID, domain.KindDatabase) {
		res, err := s.dispatcher.Deploy(ctx, token, projectID, draft, nil)
		if err != nil {
			result.Failed = append(result.Failed, Failure{Kind: draft.Kind, Name: draft.Name, Message: err.Error()})
			continue
		}
		deployedDBs = append(deployedDBs, res)
		result.Deployed = append(result.Deployed, res)
		s.drafts.RemoveByName(projectID, domain.KindDatabase, draft.Name)
	}

	var resMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDeploys)
	for _, kind := range []domain.Kind{domain.KindBackend, domain.KindFrontend} {
		for _, draft := range s.drafts.List(projectID, kind) {
			draft := draft
			kind := kind
			g.Go(func() error {
				res, err := s.dispatcher.Deploy(gctx, token, projectID, draft, deployedDBs)
				resMu.Lock()
				defer resMu.Unlock()
				if err != nil {
					result.Failed = append(result.Failed, Failure{Kind: kind, Name: draft.Name, Message: err.Error()})
					return nil
				}
				result.Deployed = append(result.Deployed, res)
				s.drafts.RemoveByName(projectID, kind, draft.Name)
				return nil
			})
		}
	}
	_ = g.Wait()

	if len(result.Failed) == 0 {
		s.drafts.Clear(projectID)
		s.mu.Lock()
		delete(s.steps, projectID)
		s.mu.Unlock()
	}

	if err := s.refresher.Refresh(ctx, token, projectID); err != nil {
		if s.logger != nil {
			s.logger.Warn("refresh after submit failed", "project_id", projectID, "error", err)
		}
	}
	if s.logger != nil {
		s.logger.Info("wizard submission finished",
			"project_id", projectID,
			"deployed", len(result.Deployed),
			"failed", len(result.Failed),
		)
	}
	return result, nil
}
