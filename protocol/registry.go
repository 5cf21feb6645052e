package protocol

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrDuplicateType = errors.New("message type already registered")
	ErrRegistryBuilt = errors.New("registry already built")
	ErrNilType       = errors.New("cannot register nil type")
)

// Tag is the numeric wire id of a registered message type.
type Tag uint16

// Entry describes one registered message type.
type Entry struct {
	Tag         Tag
	Name        string
	Reliability Reliability
	typ         reflect.Type
}

// Registry collects message types before the session starts. Every peer must
// register the same types in the same order: the assigned tags are the wire schema.
type Registry struct {
	entries []Entry
	byType  map[reflect.Type]Tag
	built   bool
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[reflect.Type]Tag)}
}

// Register adds the dynamic type of v. Tags are handed out in call order starting at 1.
func (r *Registry) Register(v any, rel Reliability) (Tag, error) {
	typ := reflect.TypeOf(v)
	if typ == nil {
		return 0, ErrNilType
	}
	return r.register(typ, rel)
}

func (r *Registry) register(typ reflect.Type, rel Reliability) (Tag, error) {
	if r.built {
		return 0, fmt.Errorf("register %s: %w", typ, ErrRegistryBuilt)
	}
	if rel != Reliable && rel != Unreliable {
		return 0, fmt.Errorf("register %s: invalid reliability %d", typ, rel)
	}
	if _, ok := r.byType[typ]; ok {
		return 0, fmt.Errorf("register %s: %w", typ, ErrDuplicateType)
	}
	tag := Tag(len(r.entries) + 1)
	r.entries = append(r.entries, Entry{Tag: tag, Name: typ.String(), Reliability: rel, typ: typ})
	r.byType[typ] = tag
	return tag, nil
}

// Register adds message type M to r.
func Register[M any](r *Registry, rel Reliability) (Tag, error) {
	return r.register(reflect.TypeFor[M](), rel)
}

// MustRegister is Register for startup code; a duplicate is a programming error.
func MustRegister[M any](r *Registry, rel Reliability) Tag {
	tag, err := Register[M](r, rel)
	if err != nil {
		panic(err)
	}
	return tag
}

// Build freezes the registry. Further registration fails.
func (r *Registry) Build() (*Table, error) {
	if r.built {
		return nil, ErrRegistryBuilt
	}
	r.built = true
	t := &Table{
		entries: make([]Entry, len(r.entries)),
		byType:  make(map[reflect.Type]Tag, len(r.byType)),
	}
	copy(t.entries, r.entries)
	for typ, tag := range r.byType {
		t.byType[typ] = tag
	}
	return t, nil
}

// Table is the immutable result of Build, shared by the replication tick and the event channel.
type Table struct {
	entries []Entry
	byType  map[reflect.Type]Tag
}

func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns the registered types in tag order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Table) TagOf(v any) (Tag, bool) {
	typ := reflect.TypeOf(v)
	if typ == nil {
		return 0, false
	}
	tag, ok := t.byType[typ]
	return tag, ok
}

func TagFor[M any](t *Table) (Tag, bool) {
	tag, ok := t.byType[reflect.TypeFor[M]()]
	return tag, ok
}

func (t *Table) entry(tag Tag) (Entry, bool) {
	if tag == 0 || int(tag) > len(t.entries) {
		return Entry{}, false
	}
	return t.entries[tag-1], true
}

func (t *Table) Reliability(tag Tag) (Reliability, bool) {
	e, ok := t.entry(tag)
	return e.Reliability, ok
}

func (t *Table) Name(tag Tag) string {
	e, ok := t.entry(tag)
	if !ok {
		return fmt.Sprintf("tag(%d)", tag)
	}
	return e.Name
}

// Known reports whether tag is registered or is the handshake tag.
func (t *Table) Known(tag Tag) bool {
	if tag == HandshakeTag {
		return true
	}
	_, ok := t.entry(tag)
	return ok
}
