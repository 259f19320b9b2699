package overview

import (
	"testing"

	"github.com/quayside/console/internal/domain"
)

func remote(status domain.Status) domain.ResourceView {
	return domain.ResourceView{Remote: &domain.RemoteResource{Status: status}}
}

func TestSummarizeCountsSumToTotal(t *testing.T) {
	resources := []domain.ResourceView{
		remote(domain.StatusRunning),
		remote(domain.StatusRunning),
		remote(domain.StatusPaused),
		remote(domain.StatusBuilding),
		remote(domain.StatusError),
		{Draft: &domain.DraftResource{Kind: domain.KindBackend, Name: "staged"}},
	}
	s := Summarize(resources)
	if s.Total != 6 || s.Running != 2 || s.Paused != 1 || s.Other != 3 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.Running+s.Paused+s.Other != s.Total {
		t.Fatalf("counts must sum to total: %+v", s)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.Running != 0 || s.Paused != 0 || s.Other != 0 {
		t.Fatalf("empty input must yield zero summary: %+v", s)
	}
}

func TestForProject(t *testing.T) {
	view := domain.ProjectView{
		ProjectID: "p1",
		Databases: domain.KindView{Kind: domain.KindDatabase, Resources: []domain.ResourceView{remote(domain.StatusRunning)}},
		Backends:  domain.KindView{Kind: domain.KindBackend, Resources: []domain.ResourceView{remote(domain.StatusPaused)}},
		Frontends: domain.KindView{Kind: domain.KindFrontend},
	}
	summaries := ForProject(view)
	if summaries[domain.KindDatabase].Running != 1 {
		t.Fatalf("unexpected database summary: %+v", summaries[domain.KindDatabase])
	}
	if summaries[domain.KindBackend].Paused != 1 {
		t.Fatalf("unexpected backend summary: %+v", summaries[domain.KindBackend])
	}
	if summaries[domain.KindFrontend].Total != 0 {
		t.Fatalf("unexpected frontend summary: %+v", summaries[domain.KindFrontend])
	}
}
