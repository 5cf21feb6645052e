package netsync

import (
	"errors"
	"fmt"
	"slices"

	"breakout/peer"
	"breakout/protocol"
)

var (
	ErrNotAttached  = errors.New("channel is not attached to a replicator")
	ErrAlreadyBound = errors.New("object already bound on this channel")
	ErrNilField     = errors.New("nil field")
)

// Envelope is the wire form of one field update.
type Envelope[M any] struct {
	ID  ObjectID `cbor:"id"`
	Seq uint64   `cbor:"seq,omitempty"`
	Msg M        `cbor:"msg"`
}

type Option func(*options)

type options struct {
	sequenced bool
}

// Sequenced numbers every published envelope per object and makes followers
// ignore envelopes that are not newer than the last one applied. Without it the
// last envelope to arrive in a tick wins.
func Sequenced() Option {
	return func(o *options) { o.sequenced = true }
}

// Binding is the handle of one (object, field) directive.
type Binding struct {
	ID  ObjectID
	Dir Direction

	release func()
}

// Unbind stops replicating the field. The field is left at its current value.
func (b *Binding) Unbind() {
	if b != nil && b.release != nil {
		b.release()
		b.release = nil
	}
}

type binding[T any] struct {
	handle  *Binding
	field   Field[T]
	sent    uint64
	applied uint64
}

// Channel replicates fields of local type T as wire type M.
type Channel[T, M any] struct {
	tag       protocol.Tag
	toWire    func(T) M
	fromWire  func(M) T
	sequenced bool

	rep      *Replicator
	bindings []*binding[T]
}

// Register adds Envelope[M] to reg and returns the channel for it.
func Register[T, M any](reg *protocol.Registry, rel protocol.Reliability, toWire func(T) M, fromWire func(M) T, opts ...Option) (*Channel[T, M], error) {
	if toWire == nil || fromWire == nil {
		return nil, errors.New("sync channel: projections are required")
	}
	tag, err := protocol.Register[Envelope[M]](reg, rel)
	if err != nil {
		return nil, fmt.Errorf("sync channel: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Channel[T, M]{
		tag:       tag,
		toWire:    toWire,
		fromWire:  fromWire,
		sequenced: o.sequenced,
	}, nil
}

// MustRegister is Register for startup code.
func MustRegister[T, M any](reg *protocol.Registry, rel protocol.Reliability, toWire func(T) M, fromWire func(M) T, opts ...Option) *Channel[T, M] {
	ch, err := Register(reg, rel, toWire, fromWire, opts...)
	if err != nil {
		panic(err)
	}
	return ch
}

func (c *Channel[T, M]) Tag() protocol.Tag {
	return c.tag
}

// Len returns the number of live bindings.
func (c *Channel[T, M]) Len() int {
	return len(c.bindings)
}

// Bind attaches a directive for id to field. On error nothing is bound and the
// field stays under local control.
func (c *Channel[T, M]) Bind(id ObjectID, field Field[T], dir Direction) (*Binding, error) {
	if c.rep == nil {
		return nil, ErrNotAttached
	}
	if field == nil {
		return nil, ErrNilField
	}
	if err := dir.Validate(c.rep.ServerCapable()); err != nil {
		c.rep.logger.Printf("object %v: %v: %v", id, dir, err)
		return nil, fmt.Errorf("bind object %v: %w", id, err)
	}
	for _, b := range c.bindings {
		if b.handle.ID == id {
			return nil, fmt.Errorf("bind object %v: %w", id, ErrAlreadyBound)
		}
	}
	b := &binding[T]{handle: &Binding{ID: id, Dir: dir}, field: field}
	b.handle.release = func() { c.remove(b) }
	c.bindings = append(c.bindings, b)
	return b.handle, nil
}

func (c *Channel[T, M]) remove(b *binding[T]) {
	c.bindings = slices.DeleteFunc(c.bindings, func(x *binding[T]) bool { return x == b })
}

func (c *Channel[T, M]) attach(r *Replicator) error {
	if c.rep != nil && c.rep != r {
		return fmt.Errorf("channel tag %d: already attached", c.tag)
	}
	c.rep = r
	return nil
}

func (c *Channel[T, M]) releaseAll() {
	for _, b := range c.bindings {
		b.handle.release = nil
	}
	c.bindings = nil
}

type inbound[M any] struct {
	from peer.ID
	env  Envelope[M]
}

// sync runs the apply and publish steps for one tick.
func (c *Channel[T, M]) sync(ep endpoint) (applied, published int) {
	raw := ep.received(c.tag)
	msgs := make([]inbound[M], 0, len(raw))
	for _, m := range raw {
		env, err := protocol.Unmarshal[Envelope[M]](m.Payload)
		if err != nil {
			c.rep.logger.Printf("tag %d from peer %d: %v", c.tag, m.From, err)
			continue
		}
		msgs = append(msgs, inbound[M]{from: m.From, env: env})
	}

	bindings := slices.Clone(c.bindings)
	server := ep.serverCapable()

	for _, b := range bindings {
		spec, ok := b.handle.Dir.Receives()
		if !ok {
			continue
		}
		if in, ok := c.latest(msgs, b, spec, server); ok {
			b.field.Set(c.fromWire(in.env.Msg))
			b.applied = in.env.Seq
			applied++
		}
	}

	for _, b := range bindings {
		spec, ok := b.handle.Dir.Sends()
		if !ok {
			continue
		}
		env := Envelope[M]{ID: b.handle.ID, Msg: c.toWire(b.field.Get())}
		if c.sequenced {
			b.sent++
			env.Seq = b.sent
		}
		payload, err := protocol.Marshal(env)
		if err != nil {
			c.rep.logger.Printf("object %v: encode: %v", b.handle.ID, err)
			continue
		}
		if err := ep.publish(spec, c.tag, payload); err != nil {
			c.rep.logger.Printf("object %v: send: %v", b.handle.ID, err)
			continue
		}
		published++
	}
	return applied, published
}

// latest picks the envelope to apply for b: the last matching one in arrival
// order, or with Sequenced the newest one past what was already applied.
func (c *Channel[T, M]) latest(msgs []inbound[M], b *binding[T], spec peer.Spec, server bool) (inbound[M], bool) {
	var (
		best  inbound[M]
		found bool
	)
	for _, in := range msgs {
		if in.env.ID != b.handle.ID {
			continue
		}
		if server && !spec.Matches(in.from) {
			continue
		}
		if c.sequenced {
			if in.env.Seq <= b.applied || (found && in.env.Seq <= best.env.Seq) {
				continue
			}
		}
		best, found = in, true
	}
	return best, found
}
