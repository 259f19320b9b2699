package domain

import (
	"errors"
	"strings"
	"time"
)

// Archive references an uploaded source or seed archive.
type Archive struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Content []byte `json:"-"`
}

// ConnectionInfo holds the concrete parameters a backend uses to reach its
// database. All five fields must be populated before dispatch. Passwords
// travel on the wire in both directions; browser-facing responses go through
// Redacted copies instead of dropping the field at decode time.
type ConnectionInfo struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	DatabaseName string `json:"database_name"`
	Username     string `json:"username"`
	Password     string `json:"password,omitempty"`
}

func (c *ConnectionInfo) redacted() *ConnectionInfo {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Password = ""
	return &cp
}

// Complete reports whether every connection field is populated.
func (c ConnectionInfo) Complete() bool {
	return strings.TrimSpace(c.Host) != "" &&
		c.Port > 0 &&
		strings.TrimSpace(c.DatabaseName) != "" &&
		strings.TrimSpace(c.Username) != "" &&
		c.Password != ""
}

// ErrInvalidBinding marks a database binding that is neither a sibling
// reference nor a fully populated inline connection.
var ErrInvalidBinding = errors.New("domain: database binding must be a reference or fully inline")

// DatabaseBinding connects a backend draft to a database. Exactly one of
// RefName (the name of a sibling database resource) or Inline must be set;
// a partially populated inline connection is invalid.
type DatabaseBinding struct {
	RefName string          `json:"ref_name,omitempty"`
	Inline  *ConnectionInfo `json:"inline,omitempty"`
}

// Validate enforces the exactly-one invariant.
func (b DatabaseBinding) Validate() error {
	hasRef := strings.TrimSpace(b.RefName) != ""
	if hasRef == (b.Inline != nil) {
		return ErrInvalidBinding
	}
	if b.Inline != nil && !b.Inline.Complete() {
		return ErrInvalidBinding
	}
	return nil
}

// Resolved reports whether the binding carries concrete connection fields
// and can therefore be submitted to the remote service.
func (b DatabaseBinding) Resolved() bool {
	return b.Inline != nil && b.Inline.Complete()
}

// DatabaseSpec is the client-authored description of a database resource.
type DatabaseSpec struct {
	Engine       Engine   `json:"engine"`
	DatabaseName string   `json:"database_name"`
	Username     string   `json:"username"`
	Password     string   `json:"password,omitempty"`
	SeedArchive  *Archive `json:"seed_archive,omitempty"`
}

// AppSpec is the client-authored description of a backend or frontend.
// Binding is set for backends only.
type AppSpec struct {
	Framework string           `json:"framework"`
	Source    SourceKind       `json:"source"`
	ImageRef  string           `json:"image_ref,omitempty"`
	Archive   *Archive         `json:"archive,omitempty"`
	Domain    string           `json:"domain,omitempty"`
	Binding   *DatabaseBinding `json:"binding,omitempty"`
}

// DraftResource is a resource authored locally and not yet confirmed by the
// remote service. Drafts never carry an id; identity within a project is the
// (kind, name) pair. Exactly one of Database or App is set, matching Kind.
type DraftResource struct {
	Kind      Kind          `json:"kind"`
	Name      string        `json:"name"`
	Database  *DatabaseSpec `json:"database,omitempty"`
	App       *AppSpec      `json:"app,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Redacted returns a deep copy with credentials blanked, for responses that
// leave the console toward the browser. The receiver is not modified.
func (d DraftResource) Redacted() DraftResource {
	if d.Database != nil {
		db := *d.Database
		db.Password = ""
		d.Database = &db
	}
	if d.App != nil {
		app := *d.App
		if app.Binding != nil {
			b := *app.Binding
			b.Inline = b.Inline.redacted()
			app.Binding = &b
		}
		d.App = &app
	}
	return d
}
