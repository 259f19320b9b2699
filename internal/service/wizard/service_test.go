package wizard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/quayside/console/internal/domain"
	"github.com/quayside/console/internal/service/draft"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	deployed []domain.DraftResource
	dbSeen   map[string][]string // draft name -> database names visible at deploy time
	failFor  map[string]string   // draft name -> rejection message
}

func (f *fakeDispatcher) Deploy(ctx context.Context, token, projectID string, d domain.DraftResource, databases []domain.RemoteResource) (domain.RemoteResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dbSeen == nil {
		f.dbSeen = make(map[string][]string)
	}
	var names []string
	for _, db := range databases {
		names = append(names, db.Name)
	}
	f.dbSeen[d.Name] = names
	if msg, ok := f.failFor[d.Name]; ok {
		return domain.RemoteResource{}, errors.New(msg)
	}
	f.deployed = append(f.deployed, d)
	return domain.RemoteResource{
		ID:     "id-" + d.Name,
		Kind:   d.Kind,
		Name:   d.Name,
		Status: domain.StatusPending,
		Endpoint: &domain.Endpoint{
			Host: d.Name + ".internal",
			Port: 3306,
		},
	}, nil
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, token, projectID string) error {
	f.calls++
	return f.err
}

type fakeDatabaseIndex struct {
	remotes []domain.RemoteResource
}

func (f *fakeDatabaseIndex) Remotes(projectID string, kind domain.Kind) []domain.RemoteResource {
	return f.remotes
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWizard(dispatcher *fakeDispatcher, store *draft.Store, refresher *fakeRefresher, index *fakeDatabaseIndex) *Service {
	return New(dispatcher, store, refresher, index, testLogger())
}

func stageBackend(t *testing.T, store *draft.Store, name string, binding *domain.DatabaseBinding) {
	t.Helper()
	err := store.Add("p1", domain.DraftResource{
		Kind: domain.KindBackend,
		Name: name,
		App: &domain.AppSpec{
			Framework: "express",
			Source:    domain.SourceImage,
			ImageRef:  "node:20",
			Binding:   binding,
		},
	})
	if err != nil {
		t.Fatalf("stage backend %s: %v", name, err)
	}
}

func stageDatabase(t *testing.T, store *draft.Store, name string) {
	t.Helper()
	err := store.Add("p1", domain.DraftResource{
		Kind:     domain.KindDatabase,
		Name:     name,
		Database: &domain.DatabaseSpec{Engine: domain.EngineMySQL, DatabaseName: "app", Username: "app", Password: "pw"},
	})
	if err != nil {
		t.Fatalf("stage database %s: %v", name, err)
	}
}

func TestNextBlockedWithoutProjectName(t *testing.T) {
	store := draft.NewStore(nil)
	svc := newWizard(&fakeDispatcher{}, store, &fakeRefresher{}, &fakeDatabaseIndex{})

	if _, err := svc.Next("p1"); !errors.Is(err, ErrStepBlocked) {
		t.Fatalf("expected ErrStepBlocked without a name, got %v", err)
	}
	store.SetDetails("p1", "shop", "")
	step, err := svc.Next("p1")
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if step != StepDatabases {
		t.Fatalf("expected databases step, got %s", step)
	}
}

func TestBackendStepBlockedOnInvalidBinding(t *testing.T) {
	store := draft.NewStore(nil)
	store.SetDetails("p1", "shop", "")
	stageBackend(t, store, "api", nil)
	svc := newWizard(&fakeDispatcher{}, store, &fakeRefresher{}, &fakeDatabaseIndex{})

	// details -> databases -> backends
	for i := 0; i < 2; i++ {
		if _, err := svc.Next("p1"); err != nil {
			t.Fatalf("navigation failed: %v", err)
		}
	}
	if _, err := svc.Next("p1"); !errors.Is(err, ErrStepBlocked) {
		t.Fatalf("expected ErrStepBlocked for unbound backend, got %v", err)
	}
}

func TestBackNeverBlocks(t *testing.T) {
	store := draft.NewStore(nil)
	store.SetDetails("p1", "shop", "")
	svc := newWizard(&fakeDispatcher{}, store, &fakeRefresher{}, &fakeDatabaseIndex{})

	if step := svc.Back("p1"); step != StepDetails {
		t.Fatalf("back at first step should stay at details, got %s", step)
	}
	if _, err := svc.Next("p1"); err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if step := svc.Back("p1"); step != StepDetails {
		t.Fatalf("expected details after back, got %s", step)
	}
	// Drafts survive navigation.
	stageDatabase(t, store, "orders-db")
	svc.Back("p1")
	if got := store.List("p1", domain.KindDatabase); len(got) != 1 {
		t.Fatal("navigation must not discard staged drafts")
	}
}

func TestSubmitDeploysDatabasesBeforeApps(t *testing.T) {
	store := draft.NewStore(nil)
	store.SetDetails("p1", "shop", "")
	stageDatabase(t, store, "orders-db")
	stageBackend(t, store, "api", &domain.DatabaseBinding{RefName: "orders-db"})
	dispatcher := &fakeDispatcher{}
	refresher := &fakeRefresher{}
	svc := newWizard(dispatcher, store, refresher, &fakeDatabaseIndex{})

	result, err := svc.Submit(context.Background(), "tok", "p1")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if len(result.Deployed) != 2 || len(result.Failed) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	// The backend must see the freshly deployed database for binding resolution.
	seen := dispatcher.dbSeen["api"]
	found := false
	for _, name := range seen {
		if name == "orders-db" {
			found = true
		}
	}
	if !found {
		t.Fatalf("backend deploy did not see the new database: %v", seen)
	}
	if refresher.calls != 1 {
		t.Fatalf("expected one refresh after submit, got %d", refresher.calls)
	}
	// Clean run clears the session and resets the step.
	if got := store.List("p1", domain.KindBackend); len(got) != 0 {
		t.Fatal("successful submit must clear the session")
	}
	if svc.Current("p1") != StepDetails {
		t.Fatal("successful submit must reset the step")
	}
}

func TestSubmitKeepsRejectedDraftsStaged(t *testing.T) {
	store := draft.NewStore(nil)
	store.SetDetails("p1", "shop", "")
	stageDatabase(t, store, "orders-db")
	stageBackend(t, store, "api", &domain.DatabaseBinding{RefName: "orders-db"})
	stageBackend(t, store, "worker", &domain.DatabaseBinding{RefName: "orders-db"})
	dispatcher := &fakeDispatcher{failFor: map[string]string{"worker": "image pull failed"}}
	svc := newWizard(dispatcher, store, &fakeRefresher{}, &fakeDatabaseIndex{})

	result, err := svc.Submit(context.Background(), "tok", "p1")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if len(result.Deployed) != 2 {
		t.Fatalf("expected 2 deployed, got %d", len(result.Deployed))
	}
	if len(result.Failed) != 1 || result.Failed[0].Name != "worker" {
		t.Fatalf("unexpected failures: %+v", result.Failed)
	}
	if !strings.Contains(result.Failed[0].Message, "image pull failed") {
		t.Fatalf("failure must carry the rejection message, got %q", result.Failed[0].Message)
	}

	// Only the rejected draft stays staged.
	remaining := store.List("p1", domain.KindBackend)
	if len(remaining) != 1 || remaining[0].Name != "worker" {
		t.Fatalf("expected only the rejected draft staged, got %+v", remaining)
	}
	if got := store.List("p1", domain.KindDatabase); len(got) != 0 {
		t.Fatal("deployed database draft should be removed")
	}
}
