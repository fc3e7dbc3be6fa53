package template

import (
	"time"

	"github.com/usagecast/usagecast/core/model"
)

// UserContext is the user shape exposed to templates.
type UserContext struct {
	ID                 int
	Username           string
	ExternalIdentifier string
}

// Context is the typed rendering context. PreviousUser is set only for
// takeover-derived renders.
type Context struct {
	ID           int
	Name         string
	Timestamp    string
	User         UserContext
	PreviousUser *UserContext
}

// NewContext builds a Context for a resource, user and event time. The
// timestamp is rendered as RFC 3339.
func NewContext(res model.Resource, user model.User, ts time.Time) Context {
	return Context{
		ID:        res.ID,
		Name:      res.Name,
		Timestamp: ts.UTC().Format(time.RFC3339),
		User:      userContext(user),
	}
}

// WithPreviousUser returns a copy of the context carrying the previous
// session holder.
func (c Context) WithPreviousUser(u model.User) Context {
	prev := userContext(u)
	c.PreviousUser = &prev
	return c
}

// WithUser returns a copy of the context with a different current user.
func (c Context) WithUser(u model.User) Context {
	c.User = userContext(u)
	return c
}

func userContext(u model.User) UserContext {
	return UserContext{ID: u.ID, Username: u.Username, ExternalIdentifier: u.ExternalIdentifier}
}

// fields flattens the context into the map shape templates address, with
// lowercase handlebars-style keys such as {{user.username}}.
func (c Context) fields() map[string]interface{} {
	m := map[string]interface{}{
		"id":        c.ID,
		"name":      c.Name,
		"timestamp": c.Timestamp,
		"user": map[string]interface{}{
			"id":                 c.User.ID,
			"username":           c.User.Username,
			"externalIdentifier": c.User.ExternalIdentifier,
		},
	}
	if c.PreviousUser != nil {
		m["previousUser"] = map[string]interface{}{
			"id":                 c.PreviousUser.ID,
			"username":           c.PreviousUser.Username,
			"externalIdentifier": c.PreviousUser.ExternalIdentifier,
		}
	}
	return m
}
