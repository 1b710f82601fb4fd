package sync

import (
	"fmt"
	"sort"
)

// Registry resolves kinds by name. Kinds are contributed through the fx "kinds" group.
type Registry struct {
	kinds map[string]Kind
}

func NewRegistry(kinds []Kind) *Registry {
	r := &Registry{kinds: make(map[string]Kind, len(kinds))}
	for _, k := range kinds {
		r.kinds[k.Name()] = k
	}
	return r
}

func (r *Registry) Get(name string) (Kind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, name)
	}
	return k, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
