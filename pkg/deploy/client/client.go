// Package client provides typed access to the remote deployment service.
// Every call is a single stateless request; the client performs no retries,
// no deduplication, and imposes no timeout beyond the transport default.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quayside/console/internal/domain"
)

// Client talks to the deployment service REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided deployment service URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:7100"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid deploy service url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

type requestIDKey struct{}

// WithRequestID returns a context whose outbound requests carry id in the
// X-Request-ID header, correlating console logs with deploy-service logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom extracts the request id set by WithRequestID, if any.
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// APIError represents an error response from the deployment service. Message
// carries the server-provided text verbatim when present.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("deploy service request failed with status %d", e.Status)
	}
	return fmt.Sprintf("deploy service request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, reader, contentType, token, v)
}

func (c *Client) doMultipart(ctx context.Context, method, path string, fields map[string]string, partName string, archive *domain.Archive, token string, v any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return fmt.Errorf("encode form field %s: %w", key, err)
		}
	}
	if archive != nil {
		part, err := w.CreateFormFile(partName, archive.Name)
		if err != nil {
			return fmt.Errorf("create archive part: %w", err)
		}
		if _, err := part.Write(archive.Content); err != nil {
			return fmt.Errorf("write archive part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}
	return c.send(ctx, method, path, &buf, w.FormDataContentType(), token, v)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}
	if id := RequestIDFrom(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// DatabaseRequest carries a database creation submission.
type DatabaseRequest struct {
	Name         string
	Engine       domain.Engine
	DatabaseName string
	Username     string
	Password     string
	SeedArchive  *domain.Archive
}

// DeployDatabase submits a database creation request. Seed archives are
// uploaded as a binary multipart payload; plain requests go as JSON.
func (c *Client) DeployDatabase(ctx context.Context, token, projectID string, req DatabaseRequest) (domain.RemoteResource, error) {
	path := fmt.Sprintf("/projects/%s/databases", url.PathEscape(projectID))
	var res domain.RemoteResource
	if req.SeedArchive != nil {
		fields := map[string]string{
			"name":          req.Name,
			"engine":        string(req.Engine),
			"database_name": req.DatabaseName,
			"username":      req.Username,
			"password":      req.Password,
		}
		if err := c.doMultipart(ctx, http.MethodPost, path, fields, "seed", req.SeedArchive, token, &res); err != nil {
			return domain.RemoteResource{}, err
		}
		return res, nil
	}
	body := map[string]any{
		"name":          req.Name,
		"engine":        string(req.Engine),
		"database_name": req.DatabaseName,
		"username":      req.Username,
		"password":      req.Password,
	}
	if err := c.do(ctx, http.MethodPost, path, body, token, &res); err != nil {
		return domain.RemoteResource{}, err
	}
	return res, nil
}

// AppRequest carries a backend or frontend creation submission. Connection
// is set for backends only and must be fully populated; the deployment
// service has no notion of intra-request references.
type AppRequest struct {
	Name       string
	Framework  string
	Source     domain.SourceKind
	ImageRef   string
	Archive    *domain.Archive
	Domain     string
	Connection *domain.ConnectionInfo
}

// DeployBackend submits a backend creation request.
func (c *Client) DeployBackend(ctx context.Context, token, projectID string, req AppRequest) (domain.RemoteResource, error) {
	path := fmt.Sprintf("/projects/%s/backends", url.PathEscape(projectID))
	return c.deployApp(ctx, token, path, req)
}

// DeployFrontend submits a frontend creation request.
func (c *Client) DeployFrontend(ctx context.Context, token, projectID string, req AppRequest) (domain.RemoteResource, error) {
	path := fmt.Sprintf("/projects/%s/frontends", url.PathEscape(projectID))
	return c.deployApp(ctx, token, path, req)
}

func (c *Client) deployApp(ctx context.Context, token, path string, req AppRequest) (domain.RemoteResource, error) {
	var res domain.RemoteResource
	if req.Source == domain.SourceArchive {
		fields := map[string]string{
			"name":      req.Name,
			"framework": req.Framework,
			"source":    string(req.Source),
		}
		if req.Domain != "" {
			fields["domain"] = req.Domain
		}
		if req.Connection != nil {
			fields["connection"] = encodeConnection(*req.Connection)
		}
		if err := c.doMultipart(ctx, http.MethodPost, path, fields, "archive", req.Archive, token, &res); err != nil {
			return domain.RemoteResource{}, err
		}
		return res, nil
	}
	body := map[string]any{
		"name":      req.Name,
		"framework": req.Framework,
		"source":    string(req.Source),
		"image_ref": req.ImageRef,
	}
	if req.Domain != "" {
		body["domain"] = req.Domain
	}
	if req.Connection != nil {
		body["connection"] = map[string]any{
			"host":          req.Connection.Host,
			"port":          req.Connection.Port,
			"database_name": req.Connection.DatabaseName,
			"username":      req.Connection.Username,
			"password":      req.Connection.Password,
		}
	}
	if err := c.do(ctx, http.MethodPost, path, body, token, &res); err != nil {
		return domain.RemoteResource{}, err
	}
	return res, nil
}

func encodeConnection(conn domain.ConnectionInfo) string {
	payload, err := json.Marshal(map[string]any{
		"host":          conn.Host,
		"port":          conn.Port,
		"database_name": conn.DatabaseName,
		"username":      conn.Username,
		"password":      conn.Password,
	})
	if err != nil {
		return ""
	}
	return string(payload)
}

// ListDatabases returns the authoritative database list for a project.
func (c *Client) ListDatabases(ctx context.Context, token, projectID string) ([]domain.RemoteResource, error) {
	return c.list(ctx, token, projectID, "databases")
}

// ListBackends returns the authoritative backend list for a project.
func (c *Client) ListBackends(ctx context.Context, token, projectID string) ([]domain.RemoteResource, error) {
	return c.list(ctx, token, projectID, "backends")
}

// ListFrontends returns the authoritative frontend list for a project.
func (c *Client) ListFrontends(ctx context.Context, token, projectID string) ([]domain.RemoteResource, error) {
	return c.list(ctx, token, projectID, "frontends")
}

func (c *Client) list(ctx context.Context, token, projectID, segment string) ([]domain.RemoteResource, error) {
	path := fmt.Sprintf("/projects/%s/%s", url.PathEscape(projectID), segment)
	var resources []domain.RemoteResource
	if err := c.do(ctx, http.MethodGet, path, nil, token, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// StartResource requests a transition toward running for a resource.
func (c *Client) StartResource(ctx context.Context, token, projectID, resourceID string) error {
	path := fmt.Sprintf("/projects/%s/resources/%s/start", url.PathEscape(projectID), url.PathEscape(resourceID))
	return c.do(ctx, http.MethodPost, path, nil, token, nil)
}

// StopResource requests a pause for a running resource.
func (c *Client) StopResource(ctx context.Context, token, projectID, resourceID string) error {
	path := fmt.Sprintf("/projects/%s/resources/%s/stop", url.PathEscape(projectID), url.PathEscape(resourceID))
	return c.do(ctx, http.MethodPost, path, nil, token, nil)
}

// DeleteResource removes a resource from the project.
func (c *Client) DeleteResource(ctx context.Context, token, projectID, resourceID string) error {
	path := fmt.Sprintf("/projects/%s/resources/%s", url.PathEscape(projectID), url.PathEscape(resourceID))
	return c.do(ctx, http.MethodDelete, path, nil, token, nil)
}

// DomainCheck is the advisory answer to a domain availability query.
type DomainCheck struct {
	Exists  bool   `json:"exists"`
	Message string `json:"message"`
}

// CheckDomain asks whether a candidate DNS label is already bound. The
// answer is advisory only; the authoritative uniqueness check happens at
// submission time.
func (c *Client) CheckDomain(ctx context.Context, token, label string) (DomainCheck, error) {
	path := fmt.Sprintf("/domains/check?label=%s", url.QueryEscape(label))
	var check DomainCheck
	if err := c.do(ctx, http.MethodGet, path, nil, token, &check); err != nil {
		return DomainCheck{}, err
	}
	return check, nil
}

// DeleteProject removes a project and everything deployed under it.
func (c *Client) DeleteProject(ctx context.Context, token, projectID string) error {
	path := fmt.Sprintf("/projects/%s", url.PathEscape(projectID))
	return c.do(ctx, http.MethodDelete, path, nil, token, nil)
}
