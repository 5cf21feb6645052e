package netsync

import (
	"context"
	"log"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"breakout/peer"
	"breakout/protocol"
	"breakout/transport"
)

const instrumentationName = "breakout/netsync"

// syncer is implemented by every Channel[T, M].
type syncer interface {
	attach(r *Replicator) error
	sync(ep endpoint) (applied, published int)
	releaseAll()
}

type endpoint interface {
	received(tag protocol.Tag) []transport.Message
	publish(spec peer.Spec, tag protocol.Tag, payload []byte) error
	serverCapable() bool
}

type serverEndpoint struct{ s *transport.Server }

func (e serverEndpoint) received(tag protocol.Tag) []transport.Message { return e.s.Received(tag) }
func (e serverEndpoint) serverCapable() bool                           { return true }
func (e serverEndpoint) publish(spec peer.Spec, tag protocol.Tag, payload []byte) error {
	return e.s.Send(spec, tag, payload)
}

// A client has exactly one peer, so specs are ignored in both directions.
type clientEndpoint struct{ c *transport.Client }

func (e clientEndpoint) received(tag protocol.Tag) []transport.Message { return e.c.Received(tag) }
func (e clientEndpoint) serverCapable() bool                           { return false }
func (e clientEndpoint) publish(_ peer.Spec, tag protocol.Tag, payload []byte) error {
	return e.c.Send(tag, payload)
}

// Replicator runs the per-frame replication tick over its attached channels.
// A nil server makes it a pure client; both handles make it a host, which
// replicates through the server side.
type Replicator struct {
	server   *transport.Server
	client   *transport.Client
	channels []syncer
	logger   *log.Logger
	tracer   trace.Tracer
}

type ReplicatorOption func(*Replicator)

func WithLogger(logger *log.Logger) ReplicatorOption {
	return func(r *Replicator) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) ReplicatorOption {
	return func(r *Replicator) {
		if tp != nil {
			r.tracer = tp.Tracer(instrumentationName)
		}
	}
}

func NewReplicator(server *transport.Server, client *transport.Client, opts ...ReplicatorOption) *Replicator {
	r := &Replicator{
		server: server,
		client: client,
		logger: log.New(os.Stderr, "netsync: ", log.LstdFlags),
		tracer: otel.GetTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ServerCapable reports whether this peer is a server or host.
func (r *Replicator) ServerCapable() bool {
	return r.server != nil
}

// Attach adds channels in tick order. Channels must be attached before Bind.
func (r *Replicator) Attach(channels ...syncer) error {
	for _, ch := range channels {
		if err := ch.attach(r); err != nil {
			return err
		}
		r.channels = append(r.channels, ch)
	}
	return nil
}

// Tick drains every transport handle, applies inbound values, then publishes
// authoritative ones. It never blocks on the network.
func (r *Replicator) Tick(ctx context.Context) {
	_, span := r.tracer.Start(ctx, "netsync.Tick", trace.WithAttributes(
		attribute.Int("netsync.channels", len(r.channels)),
		attribute.Bool("netsync.server", r.server != nil),
	))
	defer span.End()

	if r.server != nil {
		r.server.Poll()
	}
	if r.client != nil {
		r.client.Poll()
	}

	var ep endpoint
	switch {
	case r.server != nil:
		ep = serverEndpoint{s: r.server}
	case r.client != nil && r.client.Status().State == transport.Connected:
		ep = clientEndpoint{c: r.client}
	default:
		return
	}

	var applied, published int
	for _, ch := range r.channels {
		a, p := ch.sync(ep)
		applied += a
		published += p
	}
	span.SetAttributes(
		attribute.Int("netsync.applied", applied),
		attribute.Int("netsync.published", published),
	)
}

// Release drops every binding on every channel, as at the end of a session.
func (r *Replicator) Release() {
	for _, ch := range r.channels {
		ch.releaseAll()
	}
}
