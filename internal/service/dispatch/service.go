// Package dispatch submits creation requests to the remote deployment
// service. It gates every submission on the validation layer, resolves
// backend database bindings to concrete connection fields, and classifies
// failures. It never retries and never deduplicates: retrying an unchanged
// descriptor may create a duplicate resource.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/quayside/console/internal/domain"
	"github.com/quayside/console/internal/validate"
	"github.com/quayside/console/pkg/deploy/client"
)

var (
	// ErrAvailabilityCheck marks a domain availability query that failed in
	// transit. It means "unknown", never "taken"; submission is still
	// allowed and the server performs the authoritative check.
	ErrAvailabilityCheck = errors.New("dispatch: domain availability check failed")

	// ErrMissingSpec marks a draft whose kind-specific fields are absent.
	ErrMissingSpec = errors.New("dispatch: draft resource is missing its kind-specific spec")

	// ErrMissingBinding marks a backend draft submitted without any binding.
	ErrMissingBinding = errors.New("dispatch: backend requires a database binding")

	// ErrUnresolvedBinding marks a reference binding that could not be
	// expanded to inline connection fields before submission.
	ErrUnresolvedBinding = errors.New("dispatch: database binding is not resolved")
)

// DeploymentError reports a creation request the remote service rejected.
// Message carries the server-provided text verbatim when available.
type DeploymentError struct {
	Kind    domain.Kind
	Name    string
	Message string
	Err     error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deploy %s %q: %s", e.Kind, e.Name, e.Message)
}

func (e *DeploymentError) Unwrap() error { return e.Err }

// DeployAPI is the slice of the deployment service the dispatcher writes to.
type DeployAPI interface {
	DeployDatabase(ctx context.Context, token, projectID string, req client.DatabaseRequest) (domain.RemoteResource, error)
	DeployBackend(ctx context.Context, token, projectID string, req client.AppRequest) (domain.RemoteResource, error)
	DeployFrontend(ctx context.Context, token, projectID string, req client.AppRequest) (domain.RemoteResource, error)
	CheckDomain(ctx context.Context, token, label string) (client.DomainCheck, error)
}

// Service is the deployment dispatcher.
type Service struct {
	api    DeployAPI
	logger *slog.Logger
}

// New returns a dispatcher backed by the given deployment service client.
func New(api DeployAPI, logger *slog.Logger) Service {
	if logger != nil {
		logger = logger.With("component", "dispatch")
	}
	return Service{api: api, logger: logger}
}

// Deploy validates and submits one draft resource. databases supplies the
// sibling database descriptors used to resolve reference bindings; for
// backends with a reference binding the matching database's connection
// fields are copied verbatim before the network call.
func (s Service) Deploy(ctx context.Context, token, projectID string, draft domain.DraftResource, databases []domain.RemoteResource) (domain.RemoteResource, error) {
	requestID := uuid.NewString()
	ctx = client.WithRequestID(ctx, requestID)
	var (
		res domain.RemoteResource
		err error
	)
	switch draft.Kind {
	case domain.KindDatabase:
		res, err = s.deployDatabase(ctx, token, projectID, draft)
	case domain.KindBackend:
		res, err = s.deployApp(ctx, token, projectID, draft, databases, true)
	case domain.KindFrontend:
		res, err = s.deployApp(ctx, token, projectID, draft, nil, false)
	default:
		return domain.RemoteResource{}, fmt.Errorf("%w: kind %q", ErrMissingSpec, draft.Kind)
	}
	if err != nil {
		return domain.RemoteResource{}, err
	}
	if s.logger != nil {
		s.logger.Info("resource deployed",
			"request_id", requestID,
			"project_id", projectID,
			"kind", res.Kind,
			"resource_id", res.ID,
			"status", res.Status,
		)
	}
	return res, nil
}

func (s Service) deployDatabase(ctx context.Context, token, projectID string, draft domain.DraftResource) (domain.RemoteResource, error) {
	spec := draft.Database
	if spec == nil {
		return domain.RemoteResource{}, ErrMissingSpec
	}
	if spec.SeedArchive != nil {
		if err := validate.Archive(spec.SeedArchive.Name, spec.SeedArchive.Size); err != nil {
			return domain.RemoteResource{}, err
		}
	}
	res, err := s.api.DeployDatabase(ctx, token, projectID, client.DatabaseRequest{
		Name:         draft.Name,
		Engine:       spec.Engine,
		DatabaseName: spec.DatabaseName,
		Username:     spec.Username,
		Password:     spec.Password,
		SeedArchive:  spec.SeedArchive,
	})
	if err != nil {
		return domain.RemoteResource{}, s.classify(draft, err)
	}
	return res, nil
}

func (s Service) deployApp(ctx context.Context, token, projectID string, draft domain.DraftResource, databases []domain.RemoteResource, backend bool) (domain.RemoteResource, error) {
	spec := draft.App
	if spec == nil {
		return domain.RemoteResource{}, ErrMissingSpec
	}
	switch spec.Source {
	case domain.SourceImage:
		if err := validate.ImageReference(spec.ImageRef); err != nil {
			return domain.RemoteResource{}, err
		}
	case domain.SourceArchive:
		if spec.Archive == nil {
			return domain.RemoteResource{}, fmt.Errorf("%w: archive source without archive", ErrMissingSpec)
		}
		if err := validate.Archive(spec.Archive.Name, spec.Archive.Size); err != nil {
			return domain.RemoteResource{}, err
		}
	default:
		return domain.RemoteResource{}, fmt.Errorf("%w: source %q", ErrMissingSpec, spec.Source)
	}
	if spec.Domain != "" {
		if err := validate.DomainLabel(spec.Domain); err != nil {
			return domain.RemoteResource{}, err
		}
	}

	req := client.AppRequest{
		Name:      draft.Name,
		Framework: spec.Framework,
		Source:    spec.Source,
		ImageRef:  spec.ImageRef,
		Archive:   spec.Archive,
		Domain:    spec.Domain,
	}
	if backend {
		conn, err := resolveBinding(spec.Binding, databases)
		if err != nil {
			return domain.RemoteResource{}, err
		}
		req.Connection = conn
	}

	deploy := s.api.DeployFrontend
	if backend {
		deploy = s.api.DeployBackend
	}
	res, err := deploy(ctx, token, projectID, req)
	if err != nil {
		return domain.RemoteResource{}, s.classify(draft, err)
	}
	return res, nil
}

// resolveBinding expands a reference binding into inline connection fields
// by copying the sibling database's host, port, database name, username and
// password verbatim. The remote service never sees a reference.
func resolveBinding(binding *domain.DatabaseBinding, databases []domain.RemoteResource) (*domain.ConnectionInfo, error) {
	if binding == nil {
		return nil, ErrMissingBinding
	}
	if err := binding.Validate(); err != nil {
		return nil, err
	}
	if binding.Resolved() {
		conn := *binding.Inline
		return &conn, nil
	}
	ref := strings.TrimSpace(binding.RefName)
	for _, db := range databases {
		if db.Kind != domain.KindDatabase || db.Name != ref {
			continue
		}
		if db.Endpoint == nil {
			return nil, fmt.Errorf("%w: database %q has no endpoint yet", ErrUnresolvedBinding, ref)
		}
		conn := domain.ConnectionInfo{
			Host:         db.Endpoint.Host,
			Port:         db.Endpoint.Port,
			DatabaseName: db.DatabaseName,
			Username:     db.Username,
			Password:     db.Password,
		}
		if !conn.Complete() {
			return nil, fmt.Errorf("%w: database %q connection fields incomplete", ErrUnresolvedBinding, ref)
		}
		return &conn, nil
	}
	return nil, fmt.Errorf("%w: no database named %q", ErrUnresolvedBinding, ref)
}

func (s Service) classify(draft domain.DraftResource, err error) error {
	message := "deployment request failed"
	var apiErr client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		message = apiErr.Message
	}
	if s.logger != nil {
		s.logger.Error("deployment rejected", "kind", draft.Kind, "name", draft.Name, "error", err)
	}
	return &DeploymentError{
		Kind:    draft.Kind,
		Name:    draft.Name,
		Message: message,
		Err:     err,
	}
}

// CheckDomain runs the advisory availability query for a candidate label.
// The label must already pass syntactic validation; a transport failure is
// reported as ErrAvailabilityCheck and must not be read as "taken".
func (s Service) CheckDomain(ctx context.Context, token, label string) (client.DomainCheck, error) {
	if err := validate.DomainLabel(label); err != nil {
		return client.DomainCheck{}, err
	}
	check, err := s.api.CheckDomain(ctx, token, label)
	if err != nil {
		return client.DomainCheck{}, fmt.Errorf("%w: %v", ErrAvailabilityCheck, err)
	}
	return check, nil
}
