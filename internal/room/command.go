package room

import (
	"fmt"
	"strings"

	"github.com/NarekCodes/global-chat/internal/engine"
	"github.com/NarekCodes/global-chat/internal/protocol"
)

// dispatchCommand handles a "/"-prefixed chat line. The text is split on
// whitespace; everything after the command token is rejoined as the target
// argument. Errors go only to the issuer, never room-wide.
func (r *Room) dispatchCommand(mem *member, text string) {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	target := strings.Join(fields[1:], " ")

	switch cmd {
	case "/help":
		r.cmdHelp(mem)
	case "/getleader":
		r.cmdGetLeader(mem)
	case "/removeleader":
		r.cmdRemoveLeader(mem)
	case "/kick":
		r.cmdKick(mem, target)
	case "/mute":
		r.cmdMute(mem, target, true)
	case "/unmute":
		r.cmdMute(mem, target, false)
	case "/delete":
		r.deleteMessage(mem, target)
	case "/w":
		if len(fields) < 3 {
			r.localError(mem, fmt.Errorf("%w: usage: /w {name} {message}", engine.ErrValidation))
			return
		}
		r.handlePrivate(Private{Name: mem.name, To: fields[1], Text: strings.Join(fields[2:], " ")})
	case "/start", "/endday", "/kill", "/checksheriff", "/investigate", "/vote", "/skip":
		r.gameCommand(mem, cmd, target)
	default:
		r.localError(mem, engine.ErrUnknownCommand)
	}
}

func (r *Room) cmdHelp(mem *member) {
	cmds := []string{"/help", "/getleader", "/w {name} {message}"}
	if r.isLeader(mem) {
		cmds = append(cmds, "/removeleader", "/kick {name}", "/mute {name}", "/unmute {name}", "/delete {id}")
	}
	if r.game && !mem.spectator {
		switch r.state.Phase {
		case engine.PhaseLobby:
			if r.isLeader(mem) {
				cmds = append(cmds, "/start")
			}
		case engine.PhaseDay1:
			if r.isLeader(mem) {
				cmds = append(cmds, "/endday")
			}
		case engine.PhaseDay:
			cmds = append(cmds, "/vote {name}", "/skip")
		case engine.PhaseNight:
			if p, ok := r.state.FindPlayer(mem.name); ok && p.Alive {
				switch p.Role {
				case engine.RoleDon:
					cmds = append(cmds, "/kill {name}", "/checkSheriff {name}")
				case engine.RoleSheriff:
					cmds = append(cmds, "/investigate {name}")
				}
			}
		}
	}
	r.send(mem, protocol.ServerMessage{
		Type:     protocol.MsgSystemMessage,
		Title:    "AVAILABLE COMMANDS:",
		Commands: cmds,
	})
}

// cmdGetLeader claims leadership when unclaimed; otherwise it just reports
// the current leader to the caller. Leadership is never assigned
// automatically.
func (r *Room) cmdGetLeader(mem *member) {
	if r.leader == "" {
		r.leader = engine.Key(mem.name)
		r.systemBroadcast(mem.name + " is now the Leader!")
		r.broadcast(protocol.ServerMessage{Type: protocol.MsgLeaderChanged, LeaderName: mem.name})
		r.pushPresence()
		return
	}
	r.send(mem, protocol.ServerMessage{Type: protocol.MsgLeaderChanged, LeaderName: r.leaderName()})
	r.localSystem(mem, "There is already a leader: "+r.leaderName())
}

func (r *Room) cmdRemoveLeader(mem *member) {
	if !r.isLeader(mem) {
		r.localError(mem, ErrNotLeader)
		return
	}
	r.leader = ""
	r.systemBroadcast(mem.name + " stepped down as Leader.")
	r.broadcast(protocol.ServerMessage{Type: protocol.MsgLeaderChanged})
	r.pushPresence()
}

func (r *Room) cmdKick(mem *member, target string) {
	if !r.isLeader(mem) {
		r.localError(mem, ErrNotLeader)
		return
	}
	k := engine.Key(target)
	victim, ok := r.members[k]
	if !ok {
		r.localError(mem, ErrNoSuchMember)
		return
	}
	r.send(victim, protocol.ServerMessage{
		Type:    protocol.MsgKicked,
		Message: "You have been kicked by the leader.",
	})
	r.removeMember(k, reasonKicked)
}

func (r *Room) cmdMute(mem *member, target string, mute bool) {
	if !r.isLeader(mem) {
		r.localError(mem, ErrNotLeader)
		return
	}
	k := engine.Key(target)
	victim, ok := r.members[k]
	if !ok {
		r.localError(mem, ErrNoSuchMember)
		return
	}
	if mute {
		r.muted[k] = true
		r.localSystem(victim, "You have been muted by the leader.")
		r.localSystem(mem, victim.name+" has been muted.")
	} else {
		delete(r.muted, k)
		r.localSystem(victim, "You have been unmuted.")
		r.localSystem(mem, victim.name+" has been unmuted.")
	}
	r.pushPresence()
}

func usageErr(cmd string) error {
	return fmt.Errorf("%w: usage: %s {name}", engine.ErrValidation, cmd)
}

func (r *Room) gameCommand(mem *member, cmd, target string) {
	if !r.game {
		r.localError(mem, ErrNotGameRoom)
		return
	}
	if mem.spectator {
		r.localError(mem, ErrSpectator)
		return
	}

	switch cmd {
	case "/start":
		if !r.isLeader(mem) {
			r.localError(mem, ErrNotLeader)
			return
		}
		var roster []string
		for _, k := range r.order {
			if m, ok := r.members[k]; ok && !m.spectator {
				roster = append(roster, m.name)
			}
		}
		r.applyGame(mem, engine.Command{Type: engine.CmdStartGame, Actor: mem.name, Roster: roster})
	case "/endday":
		if !r.isLeader(mem) {
			r.localError(mem, ErrNotLeader)
			return
		}
		r.applyGame(mem, engine.Command{Type: engine.CmdEndDay, Actor: mem.name})
	case "/kill", "/checksheriff", "/investigate", "/vote":
		if target == "" {
			r.localError(mem, usageErr(cmd))
			return
		}
		types := map[string]engine.CommandType{
			"/kill":         engine.CmdKill,
			"/checksheriff": engine.CmdCheckSheriff,
			"/investigate":  engine.CmdInvestigate,
			"/vote":         engine.CmdVote,
		}
		r.applyGame(mem, engine.Command{Type: types[cmd], Actor: mem.name, Target: target})
	case "/skip":
		r.applyGame(mem, engine.Command{Type: engine.CmdSkip, Actor: mem.name})
	}
}

// applyGame routes a command through the engine and fans the resulting events
// out to their audiences. issuer is nil for timer-triggered commands; their
// errors (stale fires) are dropped silently.
func (r *Room) applyGame(issuer *member, cmd engine.Command) {
	events, next, err := engine.Apply(r.state, cmd)
	if err != nil {
		if issuer != nil {
			r.localError(issuer, err)
		}
		return
	}
	r.state = next
	r.processEvents(events)
}
