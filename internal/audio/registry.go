package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/sonora/internal/media"
)

// ErrGraphConstruction is returned when a resource refuses the graph.
// Playback continues without EQ and spectrum.
var ErrGraphConstruction = errors.New("audio: graph construction failed")

// Registry owns the one graph allowed per resource identity. A graph is
// built on first Attach and lives until Release.
type Registry struct {
	mu     sync.Mutex
	graphs map[string]*Graph
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		graphs: make(map[string]*Graph),
		logger: logger.With().Str("component", "audiograph").Logger(),
	}
}

// Attach returns the graph bound to res, building and installing it on
// first use. A resource is only ever wrapped once.
func (r *Registry) Attach(res media.Resource) (*Graph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.graphs[res.ID()]; ok {
		return g, nil
	}

	p, ok := res.(media.Processable)
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrGraphConstruction, media.ErrNotAnalysable)
	}
	g := NewGraph()
	if err := p.Install(g); err != nil {
		r.logger.Warn().Err(err).Str("resource", res.ID()).Msg("graph rejected")
		return nil, fmt.Errorf("%w: %w", ErrGraphConstruction, err)
	}
	r.graphs[res.ID()] = g
	r.logger.Debug().Str("resource", res.ID()).Msg("graph attached")
	return g, nil
}

// Lookup returns the graph bound to id, if any.
func (r *Registry) Lookup(id string) (*Graph, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.graphs[id]
	return g, ok
}

// Release tears down the graph for a resource being replaced.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	g, ok := r.graphs[id]
	delete(r.graphs, id)
	r.mu.Unlock()
	if ok {
		g.release()
		r.logger.Debug().Str("resource", id).Msg("graph released")
	}
}

// Len returns the number of live graphs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.graphs)
}
