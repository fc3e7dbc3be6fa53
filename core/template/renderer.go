package template

import (
	"fmt"
	"sync"

	"github.com/aymerick/raymond"
)

// Renderer renders handlebars templates against a Context. Compiled
// templates are cached by raw template text since the same handful of
// configured templates is rendered on every event.
type Renderer struct {
	mu    sync.RWMutex
	cache map[string]*raymond.Template

	hits   int64
	misses int64
}

// CacheStats reports compile cache effectiveness.
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

// NewRenderer creates a Renderer with an empty compile cache.
func NewRenderer() *Renderer {
	return &Renderer{cache: make(map[string]*raymond.Template)}
}

// Render renders tmpl against ctx. {{field}} interpolations are HTML-escaped,
// {{{field}}} emits the raw value, missing paths resolve to an empty string.
// A malformed template returns a descriptive error and no output.
func (r *Renderer) Render(tmpl string, ctx Context) (string, error) {
	compiled, err := r.compile(tmpl)
	if err != nil {
		return "", fmt.Errorf("compile template: %w", err)
	}
	out, err := compiled.Exec(ctx.fields())
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

func (r *Renderer) compile(tmpl string) (*raymond.Template, error) {
	r.mu.RLock()
	compiled, ok := r.cache[tmpl]
	r.mu.RUnlock()
	if ok {
		r.mu.Lock()
		r.hits++
		r.mu.Unlock()
		return compiled, nil
	}

	parsed, err := raymond.Parse(tmpl)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have compiled it meanwhile; keep the first.
	if existing, ok := r.cache[tmpl]; ok {
		r.hits++
		return existing, nil
	}
	r.misses++
	r.cache[tmpl] = parsed
	return parsed, nil
}

// Stats returns a snapshot of the compile cache counters.
func (r *Renderer) Stats() CacheStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return CacheStats{Hits: r.hits, Misses: r.misses, Size: len(r.cache)}
}
