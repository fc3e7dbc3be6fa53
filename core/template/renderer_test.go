package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usagecast/usagecast/core/model"
)

func testContext() Context {
	return NewContext(
		model.Resource{ID: 42, Name: "X"},
		model.User{ID: 7, Username: "alice"},
		time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	)
}

func TestRenderInterpolation(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("{{id}}-{{name}}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "42-X", out)
}

func TestRenderDottedPaths(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("resources/{{id}}/users/{{user.username}}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "resources/42/users/alice", out)
}

func TestRenderTimestamp(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("{{timestamp}}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T12:00:00Z", out)
}

func TestRenderEscaping(t *testing.T) {
	r := NewRenderer()
	ctx := NewContext(model.Resource{ID: 1, Name: `a "b" & c`}, model.User{}, time.Now())

	escaped, err := r.Render("{{name}}", ctx)
	require.NoError(t, err)
	assert.NotContains(t, escaped, `"`)
	assert.Contains(t, escaped, "&quot;")
	assert.Contains(t, escaped, "&amp;")

	raw, err := r.Render("{{{name}}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, `a "b" & c`, raw)
}

func TestRenderMissingPathIsEmpty(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("[{{nonexistent.path}}]", testContext())
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestRenderPreviousUser(t *testing.T) {
	r := NewRenderer()
	ctx := testContext().WithPreviousUser(model.User{ID: 3, Username: "bob"})
	out, err := r.Render("{{previousUser.username}}->{{user.username}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "bob->alice", out)
}

func TestRenderPreviousUserAbsent(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("[{{previousUser.username}}]", testContext())
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestRenderMalformedTemplate(t *testing.T) {
	r := NewRenderer()
	_, err := r.Render("{{#if}}", testContext())
	assert.Error(t, err)
}

func TestRenderIdempotent(t *testing.T) {
	r := NewRenderer()
	ctx := testContext()
	first, err := r.Render("{{id}}/{{user.username}}", ctx)
	require.NoError(t, err)
	second, err := r.Render("{{id}}/{{user.username}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompileCacheReuse(t *testing.T) {
	r := NewRenderer()
	ctx := testContext()
	_, err := r.Render("{{id}}", ctx)
	require.NoError(t, err)
	_, err = r.Render("{{id}}", ctx)
	require.NoError(t, err)
	_, err = r.Render("{{name}}", ctx)
	require.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 2, stats.Size)
}
