package netsync

import (
	"encoding/binary"
	"strconv"

	"github.com/google/uuid"
)

// ObjectID correlates one replicated object across peers. It is assigned once by
// the peer that creates the object and never reused within a session.
type ObjectID uint64

// NewObjectID draws a random non-zero id.
func NewObjectID() ObjectID {
	for {
		u := uuid.New()
		id := ObjectID(binary.BigEndian.Uint64(u[:8]) ^ binary.BigEndian.Uint64(u[8:]))
		if id != 0 {
			return id
		}
	}
}

func (id ObjectID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Field reads and writes one replicated value owned by the game.
type Field[T any] interface {
	Get() T
	Set(T)
}

type ptrField[T any] struct{ p *T }

func (f ptrField[T]) Get() T  { return *f.p }
func (f ptrField[T]) Set(v T) { *f.p = v }

// Ptr adapts a plain pointer to a Field.
func Ptr[T any](p *T) Field[T] {
	return ptrField[T]{p: p}
}

// Accessor adapts a getter/setter pair to a Field.
type Accessor[T any] struct {
	GetFunc func() T
	SetFunc func(T)
}

func (a Accessor[T]) Get() T  { return a.GetFunc() }
func (a Accessor[T]) Set(v T) { a.SetFunc(v) }

// Same is the projection for channels whose local and wire types are identical.
func Same[T any](v T) T { return v }
