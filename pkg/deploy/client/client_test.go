package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quayside/console/internal/domain"
)

func TestSendAttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]domain.RemoteResource{})
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := cli.ListDatabases(context.Background(), "tok-123", "p1"); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("unexpected authorization header: %q", gotAuth)
	}
}

func TestAPIErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "name already taken"})
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = cli.DeployDatabase(context.Background(), "tok", "p1", DatabaseRequest{Name: "orders-db", Engine: domain.EngineMySQL})
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Message != "name already taken" {
		t.Fatalf("unexpected APIError: %+v", apiErr)
	}
}

func TestAPIErrorFallsBackToRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	err = cli.StartResource(context.Background(), "tok", "p1", "r1")
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "upstream unavailable" {
		t.Fatalf("expected raw body as message, got %q", apiErr.Message)
	}
}

func TestDeployDatabaseWithSeedIsMultipart(t *testing.T) {
	var (
		gotContentType string
		gotSeedName    string
		gotName        string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotName = r.FormValue("name")
		if _, header, err := r.FormFile("seed"); err == nil {
			gotSeedName = header.Filename
		}
		json.NewEncoder(w).Encode(domain.RemoteResource{ID: "db-1", Kind: domain.KindDatabase, Name: gotName})
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	req := DatabaseRequest{
		Name:        "orders-db",
		Engine:      domain.EngineMySQL,
		SeedArchive: &domain.Archive{Name: "seed.zip", Size: 4, Content: []byte("PK\x03\x04")},
	}
	res, err := cli.DeployDatabase(context.Background(), "tok", "p1", req)
	if err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	if res.ID != "db-1" {
		t.Fatalf("unexpected resource: %+v", res)
	}
	if gotName != "orders-db" || gotSeedName != "seed.zip" {
		t.Fatalf("multipart fields not transmitted: name=%q seed=%q", gotName, gotSeedName)
	}
	if gotContentType == "" || gotContentType == "application/json" {
		t.Fatalf("expected multipart content type, got %q", gotContentType)
	}
}

func TestDeployBackendImageSendsConnectionJSON(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(domain.RemoteResource{ID: "be-1", Kind: domain.KindBackend})
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	req := AppRequest{
		Name:      "api",
		Framework: "express",
		Source:    domain.SourceImage,
		ImageRef:  "node:20",
		Connection: &domain.ConnectionInfo{
			Host: "db.internal", Port: 3306, DatabaseName: "orders", Username: "app", Password: "pw",
		},
	}
	if _, err := cli.DeployBackend(context.Background(), "tok", "p1", req); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	conn, ok := body["connection"].(map[string]any)
	if !ok {
		t.Fatalf("connection missing from payload: %+v", body)
	}
	// Passwords are excluded from browser-facing JSON but must cross this wire.
	if conn["password"] != "pw" {
		t.Fatalf("password must reach the deployment service, got %+v", conn)
	}
}

func TestListDatabasesKeepsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]domain.RemoteResource{
			{ID: "db-1", Kind: domain.KindDatabase, Name: "orders-db", Username: "app", Password: "pw"},
		})
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	dbs, err := cli.ListDatabases(context.Background(), "tok", "p1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	// Binding resolution copies these fields verbatim; losing them on decode
	// would leave reference bindings unresolvable.
	if len(dbs) != 1 || dbs[0].Password != "pw" {
		t.Fatalf("password lost on decode: %+v", dbs)
	}
}

func TestSendAttachesRequestIDHeader(t *testing.T) {
	var gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		json.NewEncoder(w).Encode([]domain.RemoteResource{})
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := WithRequestID(context.Background(), "req-1")
	if _, err := cli.ListBackends(ctx, "tok", "p1"); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if gotID != "req-1" {
		t.Fatalf("unexpected X-Request-ID header: %q", gotID)
	}
}

func TestCheckDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("label"); got != "my-shop" {
			t.Errorf("unexpected label: %q", got)
		}
		json.NewEncoder(w).Encode(DomainCheck{Exists: true, Message: "label is already bound"})
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	check, err := cli.CheckDomain(context.Background(), "tok", "my-shop")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !check.Exists || check.Message != "label is already bound" {
		t.Fatalf("unexpected check: %+v", check)
	}
}
