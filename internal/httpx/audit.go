package httpx

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"time"
)

// statusRecorder captures the response status and size for audit logging
// and metrics without changing handler behavior.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// routeLabel collapses per-request path segments (project and resource ids)
// so metrics cardinality stays bounded.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "/"
	}
	switch parts[0] {
	case "projects":
		if len(parts) >= 2 {
			parts[1] = ":id"
		}
		if len(parts) >= 4 && parts[2] == "resources" {
			parts[3] = ":rid"
		}
		if len(parts) >= 5 && parts[2] == "draft" && parts[3] == "resources" {
			parts[4] = ":kind"
		}
		if len(parts) >= 6 && parts[2] == "draft" && parts[3] == "resources" {
			parts[5] = ":index"
		}
	case "ws":
		if len(parts) >= 3 && parts[1] == "projects" {
			parts[2] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func (r *Router) audit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, req)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		duration := time.Since(start)
		route := routeLabel(req.URL.Path)
		r.recordRequestMetrics(req.Method, route, rec.status, duration)
		if r.logger != nil {
			r.logger.Info("http request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", duration.Milliseconds(),
				"client_ip", clientIP(req),
			)
		}
	})
}
