package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/letsplay-server/internal/protocol"
)

// SweepInterval is the liveness sweep's fixed cadence (spec §4.8: "every
// 5 seconds"), unlike the turn arbiter's expiry duration, which spec
// §4.6 calls out as externally configurable. It is not read from
// configuration.
const SweepInterval = 5 * time.Second

// Pinger is the liveness sweep: every SweepInterval it pings every
// connected user and disconnects anyone silent past Timeout. Pong
// commands, handled by the Dispatcher, reset the per-user timer this
// reads.
type Pinger struct {
	Users    *UserRegistry
	Interval time.Duration
	Timeout  time.Duration
	Log      *zerolog.Logger
}

// NewPinger builds a Pinger with the hardcoded sweep interval and the
// given silence timeout.
func NewPinger(users *UserRegistry, timeout time.Duration) *Pinger {
	return &Pinger{Users: users, Interval: SweepInterval, Timeout: timeout}
}

// Run sweeps every Interval until ctx is done.
func (p *Pinger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	ping := protocol.Encode("ping")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ping)
		}
	}
}

func (p *Pinger) sweep(ping []byte) {
	now := time.Now()
	for _, u := range p.Users.Snapshot() {
		if u.Handle == nil || u.Handle.Expired() {
			continue
		}
		if now.Sub(u.LastPongAt()) > p.Timeout {
			if err := u.Handle.Close("Timed out"); err != nil && p.Log != nil {
				p.Log.Debug().Err(err).Str("uuid", u.UUID).Msg("failed to close timed-out connection")
			}
			continue
		}
		if err := u.Handle.Send(ping); err != nil && p.Log != nil {
			p.Log.Debug().Err(err).Str("uuid", u.UUID).Msg("ping send failed")
		}
	}
}
