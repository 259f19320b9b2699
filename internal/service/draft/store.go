// Package draft holds the session-scoped staging area the project wizard
// writes to. Everything here is in-memory and disposable: a session survives
// step navigation but is cleared on discard or successful submission.
package draft

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quayside/console/internal/domain"
)

var (
	ErrUnknownKind   = errors.New("draft: unknown resource kind")
	ErrMissingName   = errors.New("draft: resource name is required")
	ErrDuplicateName = errors.New("draft: a resource with this name is already staged")
	ErrIndexRange    = errors.New("draft: index out of range")
)

// Store keeps one draft session per project id. It has no network access.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	logger   *slog.Logger
}

type session struct {
	name        string
	description string
	resources   map[domain.Kind][]domain.DraftResource
	createdAt   time.Time
}

// NewStore returns an empty draft store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*session),
		logger:   logger,
	}
}

func (s *Store) session(projectID string) *session {
	sess, ok := s.sessions[projectID]
	if !ok {
		sess = &session{
			resources: make(map[domain.Kind][]domain.DraftResource),
			createdAt: time.Now().UTC(),
		}
		s.sessions[projectID] = sess
	}
	return sess
}

// SetDetails records the project name and description for the session.
func (s *Store) SetDetails(projectID, name, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(projectID)
	sess.name = strings.TrimSpace(name)
	sess.description = strings.TrimSpace(description)
}

// Details returns the staged project name and description.
func (s *Store) Details(projectID string) (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[projectID]
	if !ok {
		return "", ""
	}
	return sess.name, sess.description
}

// Add stages a draft resource. Names must be unique within their kind and
// project; duplicates are rejected rather than replaced.
func (s *Store) Add(projectID string, res domain.DraftResource) error {
	if !res.Kind.Valid() {
		return ErrUnknownKind
	}
	res.Name = strings.TrimSpace(res.Name)
	if res.Name == "" {
		return ErrMissingName
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(projectID)
	for _, existing := range sess.resources[res.Kind] {
		if existing.Name == res.Name {
			return ErrDuplicateName
		}
	}
	sess.resources[res.Kind] = append(sess.resources[res.Kind], res)
	if s.logger != nil {
		s.logger.Debug("draft resource staged", "project_id", projectID, "kind", res.Kind, "name", res.Name)
	}
	return nil
}

// RemoveAt drops the draft at the given position within a kind's list.
func (s *Store) RemoveAt(projectID string, kind domain.Kind, index int) error {
	if !kind.Valid() {
		return ErrUnknownKind
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[projectID]
	if !ok {
		return ErrIndexRange
	}
	list := sess.resources[kind]
	if index < 0 || index >= len(list) {
		return ErrIndexRange
	}
	sess.resources[kind] = append(list[:index], list[index+1:]...)
	return nil
}

// RemoveByName drops the first draft matching name within a kind. Used after
// a successful remote delete; drafts have no id, so name is the only join
// key. A miss is not an error.
func (s *Store) RemoveByName(projectID string, kind domain.Kind, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[projectID]
	if !ok {
		return false
	}
	list := sess.resources[kind]
	for i, res := range list {
		if res.Name == name {
			sess.resources[kind] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a copy of the staged drafts for a kind, in insertion order.
func (s *Store) List(projectID string, kind domain.Kind) []domain.DraftResource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[projectID]
	if !ok {
		return nil
	}
	return append([]domain.DraftResource(nil), sess.resources[kind]...)
}

// Clear discards the whole draft session for a project.
func (s *Store) Clear(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, projectID)
}
