package events

import (
	"time"

	"breakout/protocol"
)

// Pinger sends a latency probe every Interval. Lost probes are not retried.
type Pinger struct {
	ch       *Channel
	interval time.Duration
	next     time.Time
}

func NewPinger(ch *Channel, interval time.Duration) *Pinger {
	if interval <= 0 {
		interval = protocol.PingInterval
	}
	return &Pinger{ch: ch, interval: interval}
}

// Tick sends a probe if one is due at now.
func (p *Pinger) Tick(now time.Time) error {
	if now.Before(p.next) {
		return nil
	}
	p.next = now.Add(p.interval)
	return p.ch.SendToServer(protocol.Ping{SentAt: now.UnixNano()})
}
