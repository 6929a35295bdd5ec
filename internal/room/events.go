package room

import (
	"strings"

	"go.uber.org/zap"

	"github.com/NarekCodes/global-chat/internal/engine"
	"github.com/NarekCodes/global-chat/internal/protocol"
)

// processEvents maps engine events onto outbound messages and their
// audiences: room-wide announcements, mafia-only disclosures, and
// single-viewer reveals.
func (r *Room) processEvents(events []engine.Event) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtRolesAssigned:
			r.announceRoles(ev.Grants)
		case engine.EvtGameStarted:
			r.systemBroadcast("The game has started! Check your role.")
		case engine.EvtPhaseChanged:
			r.broadcast(protocol.ServerMessage{
				Type:  protocol.MsgPhaseChanged,
				Phase: string(ev.Phase),
				Round: ev.Round,
			})
			if text := phaseAnnouncement(ev.Phase); text != "" {
				r.systemBroadcast(text)
			}
			r.pushPresence()
		case engine.EvtTimerStarted:
			r.startCountdown(ev.Seconds)
		case engine.EvtTimerStopped:
			r.stopCountdown(true)
		case engine.EvtKillMarked:
			r.mafiaSystem("The Don has marked " + ev.Player + " for the kill.")
		case engine.EvtSheriffCheck:
			if mem, ok := r.members[engine.Key(ev.Actor)]; ok {
				if ev.IsSheriff {
					r.localSystem(mem, ev.Player+" is the Sheriff!")
				} else {
					r.localSystem(mem, ev.Player+" is not the Sheriff.")
				}
			}
		case engine.EvtInvestigated:
			if mem, ok := r.members[engine.Key(ev.Actor)]; ok {
				r.localSystem(mem, ev.Player+" is aligned with the "+string(ev.Faction)+".")
				r.pushPresenceTo(mem)
			}
		case engine.EvtEliminated:
			r.systemBroadcast(eliminationText(ev))
			r.pushPresence()
		case engine.EvtPeacefulNight:
			r.systemBroadcast("The night passed peacefully. Nobody died.")
		case engine.EvtVoteCast, engine.EvtVotesReset:
			r.pushPresence()
		case engine.EvtNoElimination:
			r.systemBroadcast("The vote was tied. Nobody was eliminated.")
		case engine.EvtGameOver:
			r.announceGameOver(ev.Faction)
		default:
			r.log.Warn("unhandled engine event", zap.String("type", string(ev.Type)))
		}
	}
}

func (r *Room) announceRoles(grants []engine.RoleGrant) {
	var mafia []string
	for _, g := range grants {
		if g.Role.Faction() == engine.FactionMafia {
			mafia = append(mafia, g.Player)
		}
	}
	for _, g := range grants {
		mem, ok := r.members[engine.Key(g.Player)]
		if !ok {
			continue
		}
		r.send(mem, protocol.ServerMessage{
			Type:    protocol.MsgRoleAssigned,
			Role:    string(g.Role),
			Goal:    g.Role.Goal(),
			Faction: string(g.Role.Faction()),
		})
		if g.Role.Faction() == engine.FactionMafia {
			r.localSystem(mem, "Your faction: "+strings.Join(mafia, ", "))
		}
	}
}

// mafiaSystem sends a secret SYSTEM line to living mafia members only.
func (r *Room) mafiaSystem(text string) {
	msg := newChatMessage(SystemAuthor, text, protocol.KindSystem, true)
	r.mafiaBroadcast(protocol.ServerMessage{Type: protocol.MsgChatMessage, Chat: &msg})
}

func phaseAnnouncement(phase engine.Phase) string {
	switch phase {
	case engine.PhaseDay1:
		return "Day 1 begins. Introduce yourselves; there is no vote today."
	case engine.PhaseNight:
		return "Night falls. The town sleeps while some are busy."
	case engine.PhaseDay:
		return "The sun rises. Discuss and vote with /vote {name}, or /skip."
	default:
		return ""
	}
}

func eliminationText(ev engine.Event) string {
	who := ev.Player + " (" + string(ev.Role) + ")"
	switch ev.Cause {
	case engine.CauseVote:
		return who + " was voted out by the town."
	case engine.CauseNightKill:
		return who + " was killed during the night."
	case engine.CauseDisconnected:
		return who + " disconnected and is out of the game."
	default:
		return who + " was eliminated."
	}
}

func (r *Room) announceGameOver(winner engine.Faction) {
	r.stopCountdown(true)
	var text string
	if winner == engine.FactionTown {
		text = "Town wins! Every last mafioso has been rooted out."
	} else {
		text = "Mafia wins! The town is outnumbered."
	}
	r.broadcast(protocol.ServerMessage{
		Type:    protocol.MsgGameOver,
		Winner:  string(winner),
		Message: text,
	})
	r.systemBroadcast(text)
	// The room is immediately ready for a new /start; late joiners become
	// regular members again.
	for _, mem := range r.members {
		mem.spectator = false
	}
	r.pushPresence()
}
