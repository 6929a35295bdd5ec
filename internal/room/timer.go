package room

import (
	"time"

	"github.com/NarekCodes/global-chat/internal/engine"
	"github.com/NarekCodes/global-chat/internal/protocol"
)

// startCountdown arms the room's single countdown, cancelling any previous
// one first. Ticks and the final fire arrive through the inbox so they
// interleave with commands only at message boundaries; the generation number
// lets the loop drop fires from a timer that was since replaced.
func (r *Room) startCountdown(seconds int) {
	r.stopCountdown(false)
	r.timerGen++
	gen := r.timerGen
	cancel := make(chan struct{})
	r.timerCancel = cancel
	phase := r.state.Phase

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		remaining := seconds
		for {
			select {
			case <-cancel:
				return
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				remaining--
				if remaining <= 0 {
					select {
					case r.inbox <- timerFired{gen: gen, phase: phase}:
					case <-r.ctx.Done():
					}
					return
				}
				select {
				case r.inbox <- timerTick{gen: gen, remaining: remaining}:
				case <-cancel:
					return
				case <-r.ctx.Done():
					return
				}
			}
		}
	}()

	r.broadcast(protocol.ServerMessage{
		Type:    protocol.MsgCountdownTick,
		Seconds: seconds,
		Active:  true,
	})
}

func (r *Room) stopCountdown(announce bool) {
	if r.timerCancel == nil {
		return
	}
	close(r.timerCancel)
	r.timerCancel = nil
	r.timerGen++ // in-flight ticks and fires are now stale
	if announce {
		r.broadcast(protocol.ServerMessage{Type: protocol.MsgCountdownTick, Active: false})
	}
}

func (r *Room) handleTimerTick(m timerTick) {
	if m.gen != r.timerGen {
		return
	}
	r.broadcast(protocol.ServerMessage{
		Type:    protocol.MsgCountdownTick,
		Seconds: m.remaining,
		Active:  true,
	})
}

func (r *Room) handleTimerFired(m timerFired) {
	if m.gen != r.timerGen {
		return
	}
	r.timerCancel = nil
	// Same resolution path as an explicit command; Apply rejects the fire if
	// the room has already moved past the phase it was armed for.
	r.applyGame(nil, engine.Command{Type: engine.CmdTimeout, Phase: m.phase})
}
