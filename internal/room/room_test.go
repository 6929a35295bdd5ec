package room

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/NarekCodes/global-chat/internal/engine"
	"github.com/NarekCodes/global-chat/internal/protocol"
)

const wait = 2 * time.Second

// recvType drains the outbox until a message of the wanted type arrives, so
// tests never hang on the interleaved presence and system traffic.
func recvType(t *testing.T, ch <-chan protocol.ServerMessage, typ string) protocol.ServerMessage {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %q", typ)
			}
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", typ)
			return protocol.ServerMessage{}
		}
	}
}

// recvChatContaining waits for a chat line whose text contains substr.
func recvChatContaining(t *testing.T, ch <-chan protocol.ServerMessage, substr string) protocol.ChatMessage {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for chat %q", substr)
			}
			if msg.Type == protocol.MsgChatMessage && msg.Chat != nil && strings.Contains(msg.Chat.Text, substr) {
				return *msg.Chat
			}
		case <-deadline:
			t.Fatalf("timed out waiting for chat containing %q", substr)
			return protocol.ChatMessage{}
		}
	}
}

func recvNoType(t *testing.T, ch <-chan protocol.ServerMessage, typ string, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Type == typ {
				t.Fatalf("expected no %q, got %+v", typ, msg)
			}
		case <-deadline:
			return
		}
	}
}

func getView(t *testing.T, r *Room) View {
	t.Helper()
	reply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(wait):
		t.Fatalf("timed out waiting for view")
		return View{}
	}
}

func newTestRoom(t *testing.T, game bool, cfg Config) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, "TESTRM", game, true, cfg, zap.NewNop(), nil)
}

func join(t *testing.T, r *Room, name string) (string, chan protocol.ServerMessage) {
	t.Helper()
	out := make(chan protocol.ServerMessage, 256)
	reply := make(chan JoinReply, 1)
	r.Inbox() <- Join{Name: name, Outbox: out, Reply: reply}
	select {
	case res := <-reply:
		if res.Err != nil {
			t.Fatalf("join %q: %v", name, res.Err)
		}
		return res.Name, out
	case <-time.After(wait):
		t.Fatalf("timed out joining %q", name)
		return "", nil
	}
}

func joinErr(t *testing.T, r *Room, name string) error {
	t.Helper()
	reply := make(chan JoinReply, 1)
	r.Inbox() <- Join{Name: name, Outbox: make(chan protocol.ServerMessage, 256), Reply: reply}
	select {
	case res := <-reply:
		return res.Err
	case <-time.After(wait):
		t.Fatalf("timed out joining %q", name)
		return nil
	}
}

func TestRoom_JoinDeliversHistoryAndAnnouncement(t *testing.T) {
	r := newTestRoom(t, false, DefaultConfig())

	_, alice := join(t, r, "Alice")
	joined := recvType(t, alice, protocol.MsgRoomJoined)
	if joined.RoomCode != "TESTRM" || joined.IsGameRoom {
		t.Fatalf("unexpected roomJoined: %+v", joined)
	}
	recvType(t, alice, protocol.MsgLoadHistory)
	recvChatContaining(t, alice, "Alice has joined")

	r.Inbox() <- Chat{Name: "Alice", Text: "hello there"}
	msg := recvChatContaining(t, alice, "hello there")
	if msg.Author != "Alice" || msg.Kind != protocol.KindUser {
		t.Fatalf("unexpected chat: %+v", msg)
	}

	v := getView(t, r)
	if v.NumMembers != 1 || len(v.History) != 2 {
		t.Fatalf("want 1 member and 2 history lines, got %d/%d", v.NumMembers, len(v.History))
	}

	// A second joiner gets the backlog.
	_, bob := join(t, r, "Bob")
	hist := recvType(t, bob, protocol.MsgLoadHistory)
	if len(hist.History) != 2 {
		t.Fatalf("want 2 backlog lines, got %d", len(hist.History))
	}
}

func TestRoom_NameRules(t *testing.T) {
	r := newTestRoom(t, false, DefaultConfig())

	// The reserved system author is remapped, never rejected.
	name, _ := join(t, r, "SYSTEM")
	if name != "Anonymous" {
		t.Fatalf("want Anonymous, got %q", name)
	}

	if err := joinErr(t, r, "anonymous"); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("case-insensitive collision: want ErrNameTaken, got %v", err)
	}
	if err := joinErr(t, r, ""); !errors.Is(err, ErrBadName) {
		t.Fatalf("want ErrBadName for empty, got %v", err)
	}
	if err := joinErr(t, r, "two words"); !errors.Is(err, ErrBadName) {
		t.Fatalf("want ErrBadName for embedded space, got %v", err)
	}
	if err := joinErr(t, r, "   "); !errors.Is(err, ErrBadName) {
		t.Fatalf("want ErrBadName for all-space, got %v", err)
	}
}

func TestRoom_HistoryEviction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryLimit = 5
	r := newTestRoom(t, false, cfg)
	join(t, r, "Alice")

	for i := 0; i < 10; i++ {
		r.Inbox() <- Chat{Name: "Alice", Text: "line " + string(rune('a'+i))}
	}
	v := getView(t, r)
	if len(v.History) != 5 {
		t.Fatalf("want history capped at 5, got %d", len(v.History))
	}
	if v.History[len(v.History)-1].Text != "line j" {
		t.Fatalf("newest line must survive eviction, got %q", v.History[len(v.History)-1].Text)
	}
}

func TestRoom_LeaderClaimAndStepDown(t *testing.T) {
	r := newTestRoom(t, false, DefaultConfig())
	_, alice := join(t, r, "Alice")
	_, bob := join(t, r, "Bob")

	r.Inbox() <- Chat{Name: "Alice", Text: "/getleader"}
	if ch := recvType(t, alice, protocol.MsgLeaderChanged); ch.LeaderName != "Alice" {
		t.Fatalf("want Alice as leader, got %+v", ch)
	}

	// A second claim only reports the incumbent.
	r.Inbox() <- Chat{Name: "Bob", Text: "/getleader"}
	recvChatContaining(t, bob, "already a leader: Alice")
	if v := getView(t, r); v.Leader != "Alice" {
		t.Fatalf("leadership must not move, got %q", v.Leader)
	}

	r.Inbox() <- Chat{Name: "Alice", Text: "/removeleader"}
	recvChatContaining(t, bob, "stepped down")
	if v := getView(t, r); v.Leader != "" {
		t.Fatalf("want unclaimed leadership, got %q", v.Leader)
	}
}

func TestRoom_MuteAndUnmute(t *testing.T) {
	r := newTestRoom(t, false, DefaultConfig())
	_, alice := join(t, r, "Alice")
	_, bob := join(t, r, "Bob")

	// Moderation is leader-gated.
	r.Inbox() <- Chat{Name: "Bob", Text: "/mute Alice"}
	recvChatContaining(t, bob, "not the leader")

	r.Inbox() <- Chat{Name: "Alice", Text: "/getleader"}
	r.Inbox() <- Chat{Name: "Alice", Text: "/mute Bob"}
	recvChatContaining(t, bob, "You have been muted")

	r.Inbox() <- Chat{Name: "Bob", Text: "should not appear"}
	recvChatContaining(t, bob, "muted and cannot send")
	for _, h := range getView(t, r).History {
		if h.Text == "should not appear" {
			t.Fatalf("muted chat reached history")
		}
	}

	r.Inbox() <- Chat{Name: "Alice", Text: "/unmute Bob"}
	recvChatContaining(t, bob, "You have been unmuted")
	r.Inbox() <- Chat{Name: "Bob", Text: "back again"}
	recvChatContaining(t, alice, "back again")
}

func TestRoom_KickClosesVictim(t *testing.T) {
	r := newTestRoom(t, false, DefaultConfig())
	_, alice := join(t, r, "Alice")
	_, bob := join(t, r, "Bob")

	r.Inbox() <- Chat{Name: "Alice", Text: "/getleader"}
	r.Inbox() <- Chat{Name: "Alice", Text: "/kick Bob"}

	kicked := recvType(t, bob, protocol.MsgKicked)
	if kicked.Message == "" {
		t.Fatalf("kick must carry a reason")
	}
	recvChatContaining(t, alice, "kicked by the leader")
	if v := getView(t, r); v.NumMembers != 1 {
		t.Fatalf("want 1 member after kick, got %d", v.NumMembers)
	}
}

func TestRoom_DeleteMessagePermissions(t *testing.T) {
	r := newTestRoom(t, false, DefaultConfig())
	_, alice := join(t, r, "Alice")
	_, bob := join(t, r, "Bob")

	r.Inbox() <- Chat{Name: "Alice", Text: "delete me"}
	msg := recvChatContaining(t, alice, "delete me")

	// Bob is neither author nor leader.
	r.Inbox() <- DeleteMessage{Name: "Bob", MessageID: msg.ID}
	recvChatContaining(t, bob, "only delete your own")

	r.Inbox() <- DeleteMessage{Name: "Alice", MessageID: msg.ID}
	del := recvType(t, bob, protocol.MsgMessageDeleted)
	if del.MessageID != msg.ID {
		t.Fatalf("want deletion of %s, got %+v", msg.ID, del)
	}
	for _, h := range getView(t, r).History {
		if h.ID == msg.ID {
			t.Fatalf("deleted message still in history")
		}
	}
}

func TestRoom_TypingRelayExcludesSender(t *testing.T) {
	r := newTestRoom(t, false, DefaultConfig())
	_, alice := join(t, r, "Alice")
	_, bob := join(t, r, "Bob")

	r.Inbox() <- Typing{Name: "Alice", Active: true}
	note := recvType(t, bob, protocol.MsgTyping)
	if note.Author != "Alice" || !note.Active {
		t.Fatalf("unexpected typing relay: %+v", note)
	}
	recvNoType(t, alice, protocol.MsgTyping, 150*time.Millisecond)
}

func TestRoom_PrivateMessageReachesBothPartiesOnly(t *testing.T) {
	r := newTestRoom(t, false, DefaultConfig())
	_, alice := join(t, r, "Alice")
	_, bob := join(t, r, "Bob")
	_, carol := join(t, r, "Carol")

	r.Inbox() <- Private{Name: "Alice", To: "bob", Text: "psst"}

	got := recvType(t, bob, protocol.MsgPrivateMessage)
	if got.Chat == nil || got.Chat.Author != "Alice" || got.Chat.Text != "psst" || !got.Chat.Secret {
		t.Fatalf("unexpected whisper: %+v", got)
	}
	if got.Recipient != "Bob" {
		t.Fatalf("want recipient Bob, got %q", got.Recipient)
	}
	// The sender gets an echo; everyone else gets nothing.
	echo := recvType(t, alice, protocol.MsgPrivateMessage)
	if echo.Chat.Text != "psst" {
		t.Fatalf("unexpected echo: %+v", echo)
	}
	recvNoType(t, carol, protocol.MsgPrivateMessage, 150*time.Millisecond)

	for _, h := range getView(t, r).History {
		if h.Text == "psst" {
			t.Fatalf("whispers must never reach history")
		}
	}

	// Unknown recipients are reported to the sender only.
	r.Inbox() <- Private{Name: "Alice", To: "Ghost", Text: "anyone?"}
	recvChatContaining(t, alice, "no such user")
}

func TestRoom_WhisperCommand(t *testing.T) {
	r := newTestRoom(t, false, DefaultConfig())
	_, alice := join(t, r, "Alice")
	_, bob := join(t, r, "Bob")

	r.Inbox() <- Chat{Name: "Alice", Text: "/w Bob keep this quiet"}
	got := recvType(t, bob, protocol.MsgPrivateMessage)
	if got.Chat.Text != "keep this quiet" {
		t.Fatalf("unexpected whisper text: %+v", got.Chat)
	}

	r.Inbox() <- Chat{Name: "Alice", Text: "/w Bob"}
	recvChatContaining(t, alice, "usage: /w")
}

func TestRoom_DoneClosesOnShutdown(t *testing.T) {
	r := newTestRoom(t, false, DefaultConfig())
	join(t, r, "Alice")

	select {
	case <-r.Done():
		t.Fatalf("Done must stay open while the room runs")
	default:
	}

	r.Inbox() <- Shutdown{}
	select {
	case <-r.Done():
	case <-time.After(wait):
		t.Fatalf("Done never closed after shutdown")
	}
}

func TestRoom_OnEmptyFiresWhenLastMemberLeaves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	emptied := make(chan struct{}, 1)
	r := New(ctx, "TESTRM", false, false, DefaultConfig(), zap.NewNop(), func() {
		emptied <- struct{}{}
	})

	join(t, r, "Alice")
	r.Inbox() <- Leave{Name: "Alice"}

	select {
	case <-emptied:
	case <-time.After(wait):
		t.Fatalf("onEmpty never fired")
	}
	select {
	case <-r.Done():
	case <-time.After(wait):
		t.Fatalf("an emptied room must tear down")
	}
}

// startFive joins five members into a game room, makes the first the leader
// and starts a round, returning each member's outbox and role.
func startFive(t *testing.T, r *Room) (map[string]chan protocol.ServerMessage, map[string]engine.Role) {
	t.Helper()
	names := []string{"Alice", "Bob", "Cara", "Dave", "Eve"}
	outs := make(map[string]chan protocol.ServerMessage, len(names))
	for _, n := range names {
		_, out := join(t, r, n)
		outs[n] = out
	}
	r.Inbox() <- Chat{Name: "Alice", Text: "/getleader"}
	r.Inbox() <- Chat{Name: "Alice", Text: "/start"}

	roles := make(map[string]engine.Role, len(names))
	for _, n := range names {
		granted := recvType(t, outs[n], protocol.MsgRoleAssigned)
		if granted.Role == "" || granted.Goal == "" {
			t.Fatalf("%s got an empty role grant: %+v", n, granted)
		}
		roles[n] = engine.Role(granted.Role)
		phase := recvType(t, outs[n], protocol.MsgPhaseChanged)
		if phase.Phase != string(engine.PhaseDay1) || phase.Round != 1 {
			t.Fatalf("%s: want DAY_1 round 1 after start, got %+v", n, phase)
		}
	}
	return outs, roles
}

func holder(roles map[string]engine.Role, role engine.Role) string {
	for name, r := range roles {
		if r == role {
			return name
		}
	}
	return ""
}

func TestGameRoom_StartDealsRolesAndOpensDay1(t *testing.T) {
	r := newTestRoom(t, true, DefaultConfig())
	outs, roles := startFive(t, r)

	mafia, sheriffs := 0, 0
	for _, role := range roles {
		if role.Faction() == engine.FactionMafia {
			mafia++
		}
		if role == engine.RoleSheriff {
			sheriffs++
		}
	}
	if mafia != 1 || sheriffs != 1 {
		t.Fatalf("five players deal 1 mafia and 1 sheriff, got %d/%d", mafia, sheriffs)
	}

	tick := recvType(t, outs["Bob"], protocol.MsgCountdownTick)
	if !tick.Active || tick.Seconds == 0 {
		t.Fatalf("want an active countdown, got %+v", tick)
	}
	if v := getView(t, r); v.State.Phase != engine.PhaseDay1 {
		t.Fatalf("want DAY_1, got %s", v.State.Phase)
	}
}

func TestGameRoom_StartIsLeaderGatedAndNeedsFive(t *testing.T) {
	r := newTestRoom(t, true, DefaultConfig())
	_, alice := join(t, r, "Alice")
	_, bob := join(t, r, "Bob")

	r.Inbox() <- Chat{Name: "Bob", Text: "/start"}
	recvChatContaining(t, bob, "not the leader")

	r.Inbox() <- Chat{Name: "Alice", Text: "/getleader"}
	r.Inbox() <- Chat{Name: "Alice", Text: "/start"}
	recvChatContaining(t, alice, "not enough players")
	if v := getView(t, r); v.State.Phase != engine.PhaseLobby {
		t.Fatalf("short roster must stay in the lobby, got %s", v.State.Phase)
	}
}

func TestGameRoom_LateJoinerIsSpectator(t *testing.T) {
	r := newTestRoom(t, true, DefaultConfig())
	startFive(t, r)

	_, frank := join(t, r, "Frank")
	joined := recvType(t, frank, protocol.MsgRoomJoined)
	if !joined.IsSpectator {
		t.Fatalf("mid-round joiner must spectate: %+v", joined)
	}

	r.Inbox() <- Chat{Name: "Frank", Text: "hello?"}
	recvChatContaining(t, frank, "spectators cannot act")
	r.Inbox() <- Chat{Name: "Frank", Text: "/vote Alice"}
	recvChatContaining(t, frank, "spectators cannot act")
}

func TestGameRoom_NightChatIsMafiaOnlyAndUnrecorded(t *testing.T) {
	r := newTestRoom(t, true, DefaultConfig())
	outs, roles := startFive(t, r)
	don := holder(roles, engine.RoleDon)
	villager := holder(roles, engine.RoleVillager)

	r.Inbox() <- Chat{Name: "Alice", Text: "/endday"}
	phase := recvType(t, outs[villager], protocol.MsgPhaseChanged)
	if phase.Phase != string(engine.PhaseNight) {
		t.Fatalf("want NIGHT after /endday, got %+v", phase)
	}

	r.Inbox() <- Chat{Name: villager, Text: "anyone awake?"}
	recvChatContaining(t, outs[villager], "town sleeps")

	r.Inbox() <- Chat{Name: don, Text: "quiet now"}
	secret := recvChatContaining(t, outs[don], "quiet now")
	if !secret.Secret {
		t.Fatalf("mafia night chat must be marked secret: %+v", secret)
	}
	for _, h := range getView(t, r).History {
		if strings.Contains(h.Text, "quiet now") {
			t.Fatalf("mafia night chat must never reach history")
		}
	}
}

func TestGameRoom_NightActionsThroughDawn(t *testing.T) {
	r := newTestRoom(t, true, DefaultConfig())
	outs, roles := startFive(t, r)
	don := holder(roles, engine.RoleDon)
	sheriff := holder(roles, engine.RoleSheriff)
	villager := holder(roles, engine.RoleVillager)

	r.Inbox() <- Chat{Name: "Alice", Text: "/endday"}
	recvType(t, outs[don], protocol.MsgPhaseChanged)

	// The sheriff's finding is private and annotates only their snapshot.
	r.Inbox() <- Chat{Name: sheriff, Text: "/investigate " + don}
	recvChatContaining(t, outs[sheriff], "aligned with the Mafia")
	snap := recvType(t, outs[sheriff], protocol.MsgPresenceSnapshot)
	found := false
	for _, mv := range snap.Members {
		if mv.Name == don && mv.Alignment == string(engine.FactionMafia) {
			found = true
		}
	}
	if !found {
		t.Fatalf("sheriff snapshot must label the investigated don: %+v", snap.Members)
	}

	// The don's kill completes the night.
	r.Inbox() <- Chat{Name: don, Text: "/kill " + villager}
	recvChatContaining(t, outs[don], "killed during the night")
	dawn := recvType(t, outs[don], protocol.MsgPhaseChanged)
	if dawn.Phase != string(engine.PhaseDay) {
		t.Fatalf("want DAY after both night roles acted, got %+v", dawn)
	}

	v := getView(t, r)
	if p, _ := v.State.FindPlayer(villager); p == nil || p.Alive {
		t.Fatalf("%s should be dead at dawn", villager)
	}

	// Non-sheriff snapshots never carry alignments; drain everything the don
	// has received and check each one.
	deadline := time.After(300 * time.Millisecond)
	for {
		select {
		case msg := <-outs[don]:
			if msg.Type != protocol.MsgPresenceSnapshot {
				continue
			}
			for _, mv := range msg.Members {
				if mv.Alignment != "" {
					t.Fatalf("alignment leaked to a non-sheriff viewer: %+v", mv)
				}
			}
		case <-deadline:
			return
		}
	}
}

func TestGameRoom_VoteOutMafiaEndsGame(t *testing.T) {
	r := newTestRoom(t, true, DefaultConfig())
	outs, roles := startFive(t, r)
	don := holder(roles, engine.RoleDon)

	r.Inbox() <- Chat{Name: "Alice", Text: "/endday"}
	recvType(t, outs[don], protocol.MsgPhaseChanged) // NIGHT

	// A quiet night: the don hunts for the sheriff instead of killing.
	sheriff := holder(roles, engine.RoleSheriff)
	villager := holder(roles, engine.RoleVillager)
	r.Inbox() <- Chat{Name: don, Text: "/checkSheriff " + villager}
	r.Inbox() <- Chat{Name: sheriff, Text: "/investigate " + villager}
	recvChatContaining(t, outs[don], "is not the Sheriff")
	dawn := recvType(t, outs[don], protocol.MsgPhaseChanged)
	if dawn.Phase != string(engine.PhaseDay) {
		t.Fatalf("want DAY, got %+v", dawn)
	}

	for name := range outs {
		if name == don {
			r.Inbox() <- Chat{Name: name, Text: "/skip"}
		} else {
			r.Inbox() <- Chat{Name: name, Text: "/vote " + don}
		}
	}

	over := recvType(t, outs[sheriff], protocol.MsgGameOver)
	if over.Winner != string(engine.FactionTown) {
		t.Fatalf("want town victory, got %+v", over)
	}
	v := getView(t, r)
	if v.State.Phase != engine.PhaseLobby {
		t.Fatalf("room must return to the lobby after game over, got %s", v.State.Phase)
	}
	for name, flagged := range v.Spectators {
		if flagged {
			t.Fatalf("%s still flagged spectator after game over", name)
		}
	}
}

func TestGameRoom_DayTimerAdvancesToNight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules.DaySeconds = 1
	r := newTestRoom(t, true, cfg)
	outs, _ := startFive(t, r)

	night := recvType(t, outs["Eve"], protocol.MsgPhaseChanged)
	if night.Phase != string(engine.PhaseNight) {
		t.Fatalf("expired day timer must bring night, got %+v", night)
	}
}

func TestGameRoom_DisconnectForfeitsMidRound(t *testing.T) {
	r := newTestRoom(t, true, DefaultConfig())
	outs, roles := startFive(t, r)
	villager := holder(roles, engine.RoleVillager)
	don := holder(roles, engine.RoleDon)

	r.Inbox() <- Leave{Name: villager}
	recvChatContaining(t, outs[don], "disconnected and is out")

	v := getView(t, r)
	if p, ok := v.State.FindPlayer(villager); !ok || p.Alive {
		t.Fatalf("leaver must stay on the roster, dead: %+v", p)
	}
	if v.NumMembers != 4 {
		t.Fatalf("want 4 members, got %d", v.NumMembers)
	}
}
