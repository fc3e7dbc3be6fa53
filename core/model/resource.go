package model

// Resource is a managed physical resource (a machine, a room, a tool) whose
// usage sessions trigger notifications.
type Resource struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// User identifies the person holding a usage session.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	// ExternalIdentifier is an optional identity from an upstream SSO system.
	ExternalIdentifier string `json:"external_identifier,omitempty"`
}
