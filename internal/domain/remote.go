package domain

import "time"

// Endpoint is the network address a deployed database listens on.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// RemoteResource is the server-authored representation of a resource. It
// always carries an id and an authoritative status; once it exists it takes
// precedence over any draft with the same name.
type RemoteResource struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
	Status Status `json:"status"`

	// Database fields. Password arrives from the deployment service and is
	// needed verbatim for binding resolution; browser-facing responses use
	// Redacted copies.
	Engine       Engine    `json:"engine,omitempty"`
	Endpoint     *Endpoint `json:"endpoint,omitempty"`
	DatabaseName string    `json:"database_name,omitempty"`
	Username     string    `json:"username,omitempty"`
	Password     string    `json:"password,omitempty"`

	// Backend/frontend fields.
	Framework string `json:"framework,omitempty"`
	Domain    string `json:"domain,omitempty"`
	URL       string `json:"url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Redacted returns a copy with credentials blanked, for responses that leave
// the console toward the browser.
func (r RemoteResource) Redacted() RemoteResource {
	r.Password = ""
	return r
}
