package domain

// ResourceView is one entry of a reconciled resource list. Exactly one of
// Draft or Remote is set; the two representations are never merged because
// they have incompatible identity (drafts lack an id).
type ResourceView struct {
	Draft  *DraftResource  `json:"draft,omitempty"`
	Remote *RemoteResource `json:"remote,omitempty"`
}

// Name returns the human identifier regardless of origin.
func (v ResourceView) Name() string {
	if v.Remote != nil {
		return v.Remote.Name
	}
	if v.Draft != nil {
		return v.Draft.Name
	}
	return ""
}

// Status returns the lifecycle state; drafts are always StatusDraft.
func (v ResourceView) Status() Status {
	if v.Remote != nil {
		return v.Remote.Status
	}
	return StatusDraft
}

// KindView is the reconciled list for one resource kind. Stale is set when
// the last remote fetch failed and the list shown is the prior known-good
// one rather than fresh data.
type KindView struct {
	Kind      Kind           `json:"kind"`
	Stale     bool           `json:"stale"`
	Resources []ResourceView `json:"resources"`
}

// ProjectView is the reconciled per-kind resource view for one project.
type ProjectView struct {
	ProjectID string   `json:"project_id"`
	Databases KindView `json:"databases"`
	Backends  KindView `json:"backends"`
	Frontends KindView `json:"frontends"`
}

// ByKind returns the view slice for the requested kind.
func (p ProjectView) ByKind(kind Kind) KindView {
	switch kind {
	case KindDatabase:
		return p.Databases
	case KindBackend:
		return p.Backends
	case KindFrontend:
		return p.Frontends
	}
	return KindView{Kind: kind}
}
