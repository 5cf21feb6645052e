// Package peer holds server-assigned connection ids and the Spec predicate used
// to pick subsets of them.
package peer

import "fmt"

// ID identifies one accepted connection. The server hands them out from 1; 0 is never assigned.
type ID uint64

type kind uint8

const (
	kindAll kind = iota
	kindOnly
	kindExcept
)

// Spec selects peers. The zero value matches everyone.
type Spec struct {
	kind kind
	id   ID
}

func All() Spec         { return Spec{kind: kindAll} }
func Only(id ID) Spec   { return Spec{kind: kindOnly, id: id} }
func Except(id ID) Spec { return Spec{kind: kindExcept, id: id} }

// Matches reports whether id is selected by s.
func (s Spec) Matches(id ID) bool {
	switch s.kind {
	case kindOnly:
		return id == s.id
	case kindExcept:
		return id != s.id
	default:
		return true
	}
}

// Overlaps reports whether some peer could match both s and o.
// The id space is treated as unbounded, so All and Except overlap everything but
// the one case Only(x)/Except(x).
func (s Spec) Overlaps(o Spec) bool {
	switch {
	case s.kind == kindOnly && o.kind == kindOnly:
		return s.id == o.id
	case s.kind == kindOnly && o.kind == kindExcept:
		return s.id != o.id
	case s.kind == kindExcept && o.kind == kindOnly:
		return s.id != o.id
	default:
		return true
	}
}

func (s Spec) String() string {
	switch s.kind {
	case kindOnly:
		return fmt.Sprintf("Only(%d)", s.id)
	case kindExcept:
		return fmt.Sprintf("Except(%d)", s.id)
	default:
		return "All"
	}
}

// Filter returns the ids in ids that s selects, keeping order.
func (s Spec) Filter(ids []ID) []ID {
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if s.Matches(id) {
			out = append(out, id)
		}
	}
	return out
}
