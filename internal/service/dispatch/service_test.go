package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/quayside/console/internal/domain"
	"github.com/quayside/console/internal/validate"
	"github.com/quayside/console/pkg/deploy/client"
)

type fakeDeployAPI struct {
	databaseCalls []client.DatabaseRequest
	backendCalls  []client.AppRequest
	frontendCalls []client.AppRequest
	domainCalls   []string
	lastCtx       context.Context

	deployErr error
	check     client.DomainCheck
	checkErr  error
}

func (f *fakeDeployAPI) DeployDatabase(ctx context.Context, token, projectID string, req client.DatabaseRequest) (domain.RemoteResource, error) {
	f.lastCtx = ctx
	f.databaseCalls = append(f.databaseCalls, req)
	if f.deployErr != nil {
		return domain.RemoteResource{}, f.deployErr
	}
	return domain.RemoteResource{ID: "db-1", Kind: domain.KindDatabase, Name: req.Name, Status: domain.StatusPending}, nil
}

func (f *fakeDeployAPI) DeployBackend(ctx context.Context, token, projectID string, req client.AppRequest) (domain.RemoteResource, error) {
	f.lastCtx = ctx
	f.backendCalls = append(f.backendCalls, req)
	if f.deployErr != nil {
		return domain.RemoteResource{}, f.deployErr
	}
	return domain.RemoteResource{ID: "be-1", Kind: domain.KindBackend, Name: req.Name, Status: domain.StatusBuilding}, nil
}

func (f *fakeDeployAPI) DeployFrontend(ctx context.Context, token, projectID string, req client.AppRequest) (domain.RemoteResource, error) {
	f.lastCtx = ctx
	f.frontendCalls = append(f.frontendCalls, req)
	if f.deployErr != nil {
		return domain.RemoteResource{}, f.deployErr
	}
	return domain.RemoteResource{ID: "fe-1", Kind: domain.KindFrontend, Name: req.Name, Status: domain.StatusBuilding}, nil
}

func (f *fakeDeployAPI) CheckDomain(ctx context.Context, token, label string) (client.DomainCheck, error) {
	f.domainCalls = append(f.domainCalls, label)
	return f.check, f.checkErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeployBackendResolvesReferenceBinding(t *testing.T) {
	api := &fakeDeployAPI{}
	svc := New(api, testLogger())

	databases := []domain.RemoteResource{
		{
			ID:           "db-1",
			Kind:         domain.KindDatabase,
			Name:         "orders-db",
			Status:       domain.StatusRunning,
			Endpoint:     &domain.Endpoint{Host: "db.internal", Port: 3306},
			DatabaseName: "orders",
			Username:     "orders_user",
			Password:     "s3cret",
		},
	}
	draft := domain.DraftResource{
		Kind: domain.KindBackend,
		Name: "api",
		App: &domain.AppSpec{
			Framework: "express",
			Source:    domain.SourceImage,
			ImageRef:  "node:20",
			Binding:   &domain.DatabaseBinding{RefName: "orders-db"},
		},
	}

	if _, err := svc.Deploy(context.Background(), "tok", "p1", draft, databases); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	if len(api.backendCalls) != 1 {
		t.Fatalf("expected 1 backend call, got %d", len(api.backendCalls))
	}
	conn := api.backendCalls[0].Connection
	if conn == nil {
		t.Fatal("expected resolved connection on the request")
	}
	if conn.Host != "db.internal" || conn.Port != 3306 || conn.DatabaseName != "orders" ||
		conn.Username != "orders_user" || conn.Password != "s3cret" {
		t.Fatalf("connection fields not copied verbatim: %+v", conn)
	}
}

func TestDeployBackendUnresolvedBindingNeverReachesAPI(t *testing.T) {
	api := &fakeDeployAPI{}
	svc := New(api, testLogger())

	draft := domain.DraftResource{
		Kind: domain.KindBackend,
		Name: "api",
		App: &domain.AppSpec{
			Framework: "express",
			Source:    domain.SourceImage,
			ImageRef:  "node:20",
			Binding:   &domain.DatabaseBinding{RefName: "missing-db"},
		},
	}

	_, err := svc.Deploy(context.Background(), "tok", "p1", draft, nil)
	if !errors.Is(err, ErrUnresolvedBinding) {
		t.Fatalf("expected ErrUnresolvedBinding, got %v", err)
	}
	if len(api.backendCalls) != 0 {
		t.Fatal("unresolved binding must not reach the deployment service")
	}
}

func TestDeployBackendMissingBinding(t *testing.T) {
	api := &fakeDeployAPI{}
	svc := New(api, testLogger())

	draft := domain.DraftResource{
		Kind: domain.KindBackend,
		Name: "api",
		App:  &domain.AppSpec{Framework: "express", Source: domain.SourceImage, ImageRef: "node:20"},
	}
	if _, err := svc.Deploy(context.Background(), "tok", "p1", draft, nil); !errors.Is(err, ErrMissingBinding) {
		t.Fatalf("expected ErrMissingBinding, got %v", err)
	}
}

func TestDeployValidationRunsBeforeNetwork(t *testing.T) {
	api := &fakeDeployAPI{}
	svc := New(api, testLogger())

	draft := domain.DraftResource{
		Kind: domain.KindFrontend,
		Name: "web",
		App:  &domain.AppSpec{Framework: "react", Source: domain.SourceImage, ImageRef: "bad image ref"},
	}
	if _, err := svc.Deploy(context.Background(), "tok", "p1", draft, nil); !errors.Is(err, validate.ErrInvalidImageReference) {
		t.Fatalf("expected ErrInvalidImageReference, got %v", err)
	}
	if len(api.frontendCalls) != 0 {
		t.Fatal("invalid draft must not reach the deployment service")
	}
}

func TestDeployPropagatesServerMessageVerbatim(t *testing.T) {
	api := &fakeDeployAPI{deployErr: client.APIError{Status: 409, Message: "domain label already bound"}}
	svc := New(api, testLogger())

	draft := domain.DraftResource{
		Kind: domain.KindFrontend,
		Name: "web",
		App:  &domain.AppSpec{Framework: "react", Source: domain.SourceImage, ImageRef: "nginx"},
	}
	_, err := svc.Deploy(context.Background(), "tok", "p1", draft, nil)
	var deployErr *DeploymentError
	if !errors.As(err, &deployErr) {
		t.Fatalf("expected DeploymentError, got %v", err)
	}
	if deployErr.Message != "domain label already bound" {
		t.Fatalf("server message not passed through verbatim: %q", deployErr.Message)
	}
}

func TestDeployGenericFailureMessage(t *testing.T) {
	api := &fakeDeployAPI{deployErr: errors.New("connection refused")}
	svc := New(api, testLogger())

	draft := domain.DraftResource{
		Kind: domain.KindFrontend,
		Name: "web",
		App:  &domain.AppSpec{Framework: "react", Source: domain.SourceImage, ImageRef: "nginx"},
	}
	_, err := svc.Deploy(context.Background(), "tok", "p1", draft, nil)
	var deployErr *DeploymentError
	if !errors.As(err, &deployErr) {
		t.Fatalf("expected DeploymentError, got %v", err)
	}
	if deployErr.Message != "deployment request failed" {
		t.Fatalf("expected generic message for transport failure, got %q", deployErr.Message)
	}
}

func TestDeployAttachesRequestID(t *testing.T) {
	api := &fakeDeployAPI{}
	svc := New(api, testLogger())

	draft := domain.DraftResource{
		Kind:     domain.KindDatabase,
		Name:     "orders-db",
		Database: &domain.DatabaseSpec{Engine: domain.EngineMySQL, DatabaseName: "orders", Username: "app", Password: "pw"},
	}
	if _, err := svc.Deploy(context.Background(), "tok", "p1", draft, nil); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	if client.RequestIDFrom(api.lastCtx) == "" {
		t.Fatal("deploy context must carry a request id for the outbound call")
	}
}

func TestCheckDomainRejectsInvalidLabelLocally(t *testing.T) {
	api := &fakeDeployAPI{}
	svc := New(api, testLogger())

	if _, err := svc.CheckDomain(context.Background(), "tok", "-bad-"); !errors.Is(err, validate.ErrInvalidDomainLabel) {
		t.Fatalf("expected ErrInvalidDomainLabel, got %v", err)
	}
	if len(api.domainCalls) != 0 {
		t.Fatal("invalid label must not reach the availability checker")
	}
}

func TestCheckDomainTransportFailureIsUnknown(t *testing.T) {
	api := &fakeDeployAPI{checkErr: errors.New("timeout")}
	svc := New(api, testLogger())

	_, err := svc.CheckDomain(context.Background(), "tok", "my-shop")
	if !errors.Is(err, ErrAvailabilityCheck) {
		t.Fatalf("expected ErrAvailabilityCheck, got %v", err)
	}
}
