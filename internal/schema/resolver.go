package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
)

// ErrNoSuchField is returned when a path segment does not exist on the
// type it is resolved against.
var ErrNoSuchField = errors.New("no such field")

// NoSuchFieldError names the missing segment.
type NoSuchFieldError struct {
	Type    reflect.Type
	Path    string
	Segment string
}

func (e *NoSuchFieldError) Error() string {
	return fmt.Sprintf("field %q of path %q does not exist on %s", e.Segment, e.Path, e.Type)
}

func (e *NoSuchFieldError) Unwrap() error {
	return ErrNoSuchField
}

// Path is a resolved dotted field path. Steps are ordered from the root
// entity outwards; the last step is the leaf.
type Path struct {
	Raw   string
	Steps []Field
}

// Leaf returns the last step.
func (p Path) Leaf() Field {
	return p.Steps[len(p.Steps)-1]
}

// Alias is the terminal segment name of the path.
func (p Path) Alias() string {
	return p.Leaf().Key
}

// Nested reports whether the path navigates through another entity.
func (p Path) Nested() bool {
	return len(p.Steps) > 1
}

// Collection reports whether any step of the path is multi-valued.
func (p Path) Collection() bool {
	for _, s := range p.Steps {
		if s.Collection {
			return true
		}
	}
	return false
}

// Segments returns the path keys.
func (p Path) Segments() []string {
	keys := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		keys[i] = s.Key
	}
	return keys
}

// FieldPathResolver resolves dotted paths against entity types.
// Implementations must be safe for concurrent use.
type FieldPathResolver interface {
	Entity(t reflect.Type) (*Entity, error)
	Resolve(t reflect.Type, path string) (Path, error)
}

type pathKey struct {
	typ  reflect.Type
	path string
}

// ReflectResolver derives metadata from struct tags. Entity metadata is
// kept for the life of the process; resolved paths go through a bounded
// LRU since they are keyed by caller input.
type ReflectResolver struct {
	mu       sync.RWMutex
	entities map[reflect.Type]*Entity
	paths    *lru.Cache
}

// NewReflectResolver creates a resolver caching up to pathCacheSize
// resolved paths.
func NewReflectResolver(pathCacheSize int) *ReflectResolver {
	if pathCacheSize <= 0 {
		pathCacheSize = 1024
	}
	paths, err := lru.New(pathCacheSize)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &ReflectResolver{
		entities: make(map[reflect.Type]*Entity),
		paths:    paths,
	}
}

// Entity returns the metadata of t, deriving it on first use.
func (r *ReflectResolver) Entity(t reflect.Type) (*Entity, error) {
	t = indirect(t)

	r.mu.RLock()
	e, ok := r.entities[t]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entities[t]; ok {
		return e, nil
	}

	e, err := Describe(t)
	if err != nil {
		return nil, err
	}
	r.entities[t] = e
	log.Debug().Str("type", t.String()).Str("table", e.Table).Int("fields", len(e.Fields)).Msg("Derived entity metadata")
	return e, nil
}

// Resolve walks path segment by segment, descending into nested entity
// and collection element types.
func (r *ReflectResolver) Resolve(t reflect.Type, path string) (Path, error) {
	t = indirect(t)
	key := pathKey{typ: t, path: path}
	if cached, ok := r.paths.Get(key); ok {
		return cached.(Path), nil
	}

	segments := strings.Split(strings.TrimSpace(path), ".")
	resolved := Path{Raw: path, Steps: make([]Field, 0, len(segments))}

	current := t
	for i, segment := range segments {
		segment = strings.TrimSpace(segment)
		if i > 0 && resolved.Steps[i-1].Kind != KindEntity {
			return Path{}, &NoSuchFieldError{Type: current, Path: path, Segment: segment}
		}

		entity, err := r.Entity(current)
		if err != nil {
			return Path{}, err
		}
		field, ok := entity.Field(segment)
		if segment == "" || !ok {
			return Path{}, &NoSuchFieldError{Type: current, Path: path, Segment: segment}
		}
		resolved.Steps = append(resolved.Steps, field)
		current = field.Type
	}

	r.paths.Add(key, resolved)
	return resolved, nil
}
