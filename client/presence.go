package client

import (
	"context"
	"log"
	"time"
)

// PeerPollInterval is how often an open private room polls the peer's
// presence.
const PeerPollInterval = 10 * time.Second

// Presence reports the local user's online transitions and polls peers
// while a private room is open. All reporting is best-effort: presence
// is advisory and a failed report is only logged.
type Presence struct {
	gw Gateway
}

// NewPresence builds a reporter over the gateway.
func NewPresence(gw Gateway) *Presence {
	return &Presence{gw: gw}
}

// Start reports the local user online.
func (p *Presence) Start() {
	if err := p.gw.UpdateStatus(true); err != nil {
		log.Printf("presence: online report failed: %v", err)
	}
}

// Stop reports the local user offline. Called from teardown paths, so
// it never blocks on anything beyond the request itself.
func (p *Presence) Stop() {
	if err := p.gw.UpdateStatus(false); err != nil {
		log.Printf("presence: offline report failed: %v", err)
	}
}

// PollPeer polls a peer's status on a fixed interval, invoking onChange
// with each result, until the context is cancelled. An immediate first
// poll precedes the ticker so the caller is not blind for a full
// interval.
func (p *Presence) PollPeer(ctx context.Context, peerID uint, onChange func(Status)) {
	poll := func() {
		status, err := p.gw.UserStatus(ctx, peerID)
		if err != nil {
			log.Printf("presence: status poll for user %d failed: %v", peerID, err)
			return
		}
		onChange(status)
	}
	poll()

	ticker := time.NewTicker(PeerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}
