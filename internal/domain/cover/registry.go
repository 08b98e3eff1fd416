package cover

import (
	"sort"
)

// Registry holds the sources ordered by priority, highest first. Sources with
// equal priority keep their registration order.
type Registry struct {
	sources []Source
}

// NewRegistry sorts the given sources. Nil entries are skipped so callers can
// pass optional sources unconditionally.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{}
	for _, s := range sources {
		if s != nil {
			r.sources = append(r.sources, s)
		}
	}
	sort.SliceStable(r.sources, func(i, j int) bool {
		return r.sources[i].Priority() > r.sources[j].Priority()
	})
	return r
}

// Sources returns a copy of the ordered candidate list.
func (r *Registry) Sources() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	return len(r.sources)
}

// Kinds lists the source kinds in resolution order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.sources))
	for _, s := range r.sources {
		kinds = append(kinds, s.Kind())
	}
	return kinds
}
