package netsync

import (
	"errors"
	"fmt"

	"breakout/peer"
)

var (
	ErrToFromOnClient   = errors.New("ToFrom is only allowed on a server")
	ErrOverlappingSpecs = errors.New("ToFrom specs overlap")
	ErrInvalidDirection = errors.New("invalid direction")
)

type Mode uint8

const (
	// ModeTo: this peer is authoritative and publishes the field.
	ModeTo Mode = iota + 1
	// ModeFrom: this peer follows and overwrites the field from inbound values.
	ModeFrom
	// ModeToFrom: hub only, follows one set of peers and publishes to another.
	ModeToFrom
)

// Direction is the replication policy of one binding.
type Direction struct {
	Mode Mode
	to   peer.Spec
	from peer.Spec
}

func To(spec peer.Spec) Direction {
	return Direction{Mode: ModeTo, to: spec}
}

func From(spec peer.Spec) Direction {
	return Direction{Mode: ModeFrom, from: spec}
}

func ToFrom(to, from peer.Spec) Direction {
	return Direction{Mode: ModeToFrom, to: to, from: from}
}

// Sends returns the destination spec if the direction publishes.
func (d Direction) Sends() (peer.Spec, bool) {
	return d.to, d.Mode == ModeTo || d.Mode == ModeToFrom
}

// Receives returns the source spec if the direction applies inbound values.
func (d Direction) Receives() (peer.Spec, bool) {
	return d.from, d.Mode == ModeFrom || d.Mode == ModeToFrom
}

// Validate checks d for a peer that is (or is not) server-capable.
func (d Direction) Validate(serverCapable bool) error {
	switch d.Mode {
	case ModeTo, ModeFrom:
		return nil
	case ModeToFrom:
		if !serverCapable {
			return ErrToFromOnClient
		}
		if d.to.Overlaps(d.from) {
			return fmt.Errorf("%w: to %v, from %v", ErrOverlappingSpecs, d.to, d.from)
		}
		return nil
	default:
		return ErrInvalidDirection
	}
}

func (d Direction) String() string {
	switch d.Mode {
	case ModeTo:
		return fmt.Sprintf("To(%v)", d.to)
	case ModeFrom:
		return fmt.Sprintf("From(%v)", d.from)
	case ModeToFrom:
		return fmt.Sprintf("ToFrom(%v, %v)", d.to, d.from)
	default:
		return "Invalid"
	}
}
