// Package overview derives per-kind status counts for dashboard summaries.
package overview

import "github.com/quayside/console/internal/domain"

// Summary holds the dashboard counters for one resource kind. Other covers
// every state that is neither running nor paused (draft, pending, building,
// error), so Running + Paused + Other always equals Total.
type Summary struct {
	Total   int `json:"total"`
	Running int `json:"running"`
	Paused  int `json:"paused"`
	Other   int `json:"other"`
}

// Summarize counts statuses over a reconciled resource list. It is pure and
// recomputed on every reconciliation; nothing is persisted.
func Summarize(resources []domain.ResourceView) Summary {
	s := Summary{Total: len(resources)}
	for _, res := range resources {
		switch res.Status() {
		case domain.StatusRunning:
			s.Running++
		case domain.StatusPaused:
			s.Paused++
		}
	}
	s.Other = s.Total - s.Running - s.Paused
	return s
}

// ForProject summarizes every kind of a project view.
func ForProject(view domain.ProjectView) map[domain.Kind]Summary {
	return map[domain.Kind]Summary{
		domain.KindDatabase: Summarize(view.Databases.Resources),
		domain.KindBackend:  Summarize(view.Backends.Resources),
		domain.KindFrontend: Summarize(view.Frontends.Resources),
	}
}
