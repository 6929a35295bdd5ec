package room

import (
	"github.com/NarekCodes/global-chat/internal/engine"
	"github.com/NarekCodes/global-chat/internal/protocol"
)

// snapshotFor builds the presence list as one particular viewer sees it. Two
// viewers of the same room can legitimately get different snapshots: only a
// viewer holding the Sheriff role sees alignment labels, and only for members
// that viewer has investigated.
func (r *Room) snapshotFor(viewer *member) []protocol.MemberView {
	var discoveries map[string]engine.Faction
	if r.game {
		if p, ok := r.state.FindPlayer(viewer.name); ok && p.Role == engine.RoleSheriff {
			discoveries = r.state.Discoveries
		}
	}

	views := make([]protocol.MemberView, 0, len(r.order))
	for _, k := range r.order {
		mem, ok := r.members[k]
		if !ok {
			continue
		}
		v := protocol.MemberView{
			Name:      mem.name,
			Avatar:    mem.avatar,
			Alive:     true,
			Leader:    r.leader == k,
			Muted:     r.muted[k],
			Spectator: mem.spectator,
		}
		if r.game {
			if p, ok := r.state.Players[k]; ok {
				v.Alive = p.Alive
				v.Voted = p.HasVoted
			}
		}
		if a, ok := discoveries[k]; ok {
			v.Alignment = string(a)
		}
		views = append(views, v)
	}
	return views
}

// pushPresence recomputes and sends every member their own filtered snapshot.
// Sends are best-effort; a member with a full outbox is dropped on the next
// room-wide broadcast.
func (r *Room) pushPresence() {
	for _, k := range r.order {
		if mem, ok := r.members[k]; ok {
			r.send(mem, protocol.ServerMessage{
				Type:    protocol.MsgPresenceSnapshot,
				Members: r.snapshotFor(mem),
			})
		}
	}
}

func (r *Room) pushPresenceTo(mem *member) {
	r.send(mem, protocol.ServerMessage{
		Type:    protocol.MsgPresenceSnapshot,
		Members: r.snapshotFor(mem),
	})
}
