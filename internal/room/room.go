package room

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/NarekCodes/global-chat/internal/engine"
	"github.com/NarekCodes/global-chat/internal/protocol"
)

// SystemAuthor is the reserved author label for server-generated messages.
// A member trying to register it as a display name is remapped so system
// messages cannot be impersonated.
const (
	SystemAuthor  = "SYSTEM"
	anonymousName = "Anonymous"
)

var (
	ErrBadName      = fmt.Errorf("%w: display name must be non-empty and contain no spaces", engine.ErrValidation)
	ErrNameTaken    = fmt.Errorf("%w: that name is already taken in this room", engine.ErrConflict)
	ErrNotLeader    = fmt.Errorf("%w: you are not the leader", engine.ErrPermission)
	ErrMuted        = fmt.Errorf("%w: you are muted and cannot send messages", engine.ErrPermission)
	ErrSpectator    = fmt.Errorf("%w: spectators cannot act until the round ends", engine.ErrPermission)
	ErrNotGameRoom  = fmt.Errorf("%w: game commands are not available in this room", engine.ErrPermission)
	ErrNightSilence = fmt.Errorf("%w: the town sleeps; only the mafia talk at night", engine.ErrPermission)
	ErrNoSuchMember = fmt.Errorf("%w: no such user in this room", engine.ErrNotFound)
	ErrNoSuchMsg    = fmt.Errorf("%w: message not found", engine.ErrNotFound)
	ErrNotAuthor    = fmt.Errorf("%w: you can only delete your own messages", engine.ErrPermission)
)

type Config struct {
	HistoryLimit int
	Rules        engine.Rules
}

func DefaultConfig() Config {
	return Config{HistoryLimit: 200, Rules: engine.DefaultRules()}
}

type Msg interface{ isRoomMsg() }

type JoinReply struct {
	Name string // accepted display name (after sentinel remapping)
	Err  error
}

type Join struct {
	Name   string
	Avatar string
	Outbox chan protocol.ServerMessage
	Reply  chan JoinReply
}

type Leave struct{ Name string }

type Chat struct {
	Name string
	Text string
}

type DeleteMessage struct {
	Name      string
	MessageID string
}

type Typing struct {
	Name   string
	Active bool
}

type Private struct {
	Name string
	To   string
	Text string
}

// GetState is test-only: it reflects internal state without data races.
type GetState struct{ Reply chan View }

type Shutdown struct{}

type timerTick struct {
	gen       int
	remaining int
}

type timerFired struct {
	gen   int
	phase engine.Phase
}

func (Join) isRoomMsg()          {}
func (Leave) isRoomMsg()         {}
func (Chat) isRoomMsg()          {}
func (DeleteMessage) isRoomMsg() {}
func (Typing) isRoomMsg()        {}
func (Private) isRoomMsg()       {}
func (GetState) isRoomMsg()      {}
func (Shutdown) isRoomMsg()      {}
func (timerTick) isRoomMsg()     {}
func (timerFired) isRoomMsg()    {}

type View struct {
	Code       string
	Game       bool
	NumMembers int
	Leader     string // display name, "" when unclaimed
	Spectators map[string]bool
	Muted      map[string]bool
	History    []protocol.ChatMessage
	State      engine.State
}

type member struct {
	name      string
	avatar    string
	out       chan protocol.ServerMessage
	spectator bool
}

type leaveReason int

const (
	reasonLeft leaveReason = iota
	reasonKicked
	reasonDropped
)

// Room is a single-goroutine actor: all membership, chat, moderation and game
// state is owned by the loop, so invariants hold across one message at a time.
type Room struct {
	code      string
	game      bool
	permanent bool
	cfg       Config
	log       *zap.Logger

	inbox   chan Msg
	members map[string]*member // key: lowercase name
	order   []string           // member keys in join order
	history *History
	muted   map[string]bool
	leader  string // member key, "" when unclaimed
	state   engine.State

	timerGen    int
	timerCancel chan struct{}

	onEmpty func()
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(parent context.Context, code string, game, permanent bool, cfg Config, log *zap.Logger, onEmpty func()) *Room {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		code:      code,
		game:      game,
		permanent: permanent,
		cfg:       cfg,
		log:       log.With(zap.String("room", code)),
		inbox:     make(chan Msg, 256),
		members:   make(map[string]*member),
		history:   NewHistory(cfg.HistoryLimit),
		muted:     make(map[string]bool),
		state:     engine.NewState(cfg.Rules),
		onEmpty:   onEmpty,
		ctx:       ctx,
		cancel:    cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }
func (r *Room) Code() string      { return r.code }

// Done is closed once the room has shut down and stopped draining its inbox.
// Senders race room teardown (the hub hands out rooms asynchronously), so any
// blocking interaction with the room should select on it.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return
		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)
			case Leave:
				r.removeMember(engine.Key(msg.Name), reasonLeft)
			case Chat:
				r.handleChat(msg)
			case DeleteMessage:
				r.handleDelete(msg)
			case Typing:
				r.handleTyping(msg)
			case Private:
				r.handlePrivate(msg)
			case timerTick:
				r.handleTimerTick(msg)
			case timerFired:
				r.handleTimerFired(msg)
			case GetState:
				msg.Reply <- r.view()
			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	r.stopCountdown(false)
	for k, mem := range r.members {
		close(mem.out)
		delete(r.members, k)
	}
	r.order = nil
	r.cancel()
}

// ValidateName rejects empty names and names with embedded whitespace.
func ValidateName(name string) error {
	if name == "" {
		return ErrBadName
	}
	if strings.ContainsFunc(name, unicode.IsSpace) {
		return ErrBadName
	}
	return nil
}

func (r *Room) handleJoin(m Join) {
	name := strings.TrimSpace(m.Name)
	if name == SystemAuthor {
		name = anonymousName
	}
	if err := ValidateName(name); err != nil {
		m.Reply <- JoinReply{Err: err}
		return
	}
	k := engine.Key(name)
	if _, exists := r.members[k]; exists {
		m.Reply <- JoinReply{Err: ErrNameTaken}
		return
	}

	spectator := r.game && r.state.Phase != engine.PhaseLobby
	mem := &member{name: name, avatar: m.Avatar, out: m.Outbox, spectator: spectator}
	r.members[k] = mem
	r.order = append(r.order, k)
	m.Reply <- JoinReply{Name: name}

	r.send(mem, protocol.ServerMessage{
		Type:        protocol.MsgRoomJoined,
		RoomCode:    r.code,
		IsLeader:    r.leader == k,
		IsGameRoom:  r.game,
		IsSpectator: spectator,
		LeaderName:  r.leaderName(),
	})
	r.send(mem, protocol.ServerMessage{Type: protocol.MsgLoadHistory, History: r.history.All()})
	r.systemBroadcast(name + " has joined the chat")
	r.pushPresence()
	r.log.Info("member joined", zap.String("name", name), zap.Bool("spectator", spectator))
}

// removeMember is the single teardown path for leaves, kicks and dropped
// connections. It is idempotent, and it clears the member out of every
// structure before anything is broadcast so recomputed snapshots never show a
// ghost.
func (r *Room) removeMember(k string, reason leaveReason) {
	mem, ok := r.members[k]
	if !ok {
		return
	}
	delete(r.members, k)
	for i, key := range r.order {
		if key == k {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	delete(r.muted, k)
	wasLeader := r.leader == k
	if wasLeader {
		r.leader = ""
	}
	close(mem.out)

	if r.game && r.state.Phase != engine.PhaseLobby && !mem.spectator {
		r.applyGame(nil, engine.Command{Type: engine.CmdForfeit, Actor: mem.name})
	}

	switch reason {
	case reasonKicked:
		r.systemBroadcast(mem.name + " has been kicked by the leader.")
	default:
		r.systemBroadcast(mem.name + " has left the chat")
	}
	if wasLeader {
		r.broadcast(protocol.ServerMessage{Type: protocol.MsgLeaderChanged})
	}
	r.pushPresence()
	r.log.Info("member removed", zap.String("name", mem.name), zap.Int("reason", int(reason)))

	if len(r.members) == 0 && !r.permanent {
		r.stopCountdown(false)
		if r.onEmpty != nil {
			r.onEmpty()
		}
		r.cancel()
	}
}

func (r *Room) handleChat(m Chat) {
	k := engine.Key(m.Name)
	mem, ok := r.members[k]
	if !ok {
		return
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "/") {
		r.dispatchCommand(mem, text)
		return
	}
	if r.muted[k] {
		r.localError(mem, ErrMuted)
		return
	}
	if r.game && mem.spectator && r.state.Phase != engine.PhaseLobby {
		r.localError(mem, ErrSpectator)
		return
	}
	if r.game && r.state.Phase == engine.PhaseNight {
		p, ok := r.state.FindPlayer(mem.name)
		if !ok || !p.Alive || p.Role.Faction() != engine.FactionMafia {
			r.localError(mem, ErrNightSilence)
			return
		}
		// Mafia night channel: delivered live to living mafia only and never
		// written to history, so the transcript is gone once day breaks.
		msg := newChatMessage(mem.name, text, protocol.KindUser, true)
		r.mafiaBroadcast(protocol.ServerMessage{Type: protocol.MsgChatMessage, Chat: &msg})
		return
	}

	msg := newChatMessage(mem.name, text, protocol.KindUser, false)
	r.history.Append(msg)
	r.broadcast(protocol.ServerMessage{Type: protocol.MsgChatMessage, Chat: &msg})
}

func (r *Room) handleDelete(m DeleteMessage) {
	mem, ok := r.members[engine.Key(m.Name)]
	if !ok {
		return
	}
	r.deleteMessage(mem, m.MessageID)
}

func (r *Room) deleteMessage(mem *member, id string) {
	msg, ok := r.history.Find(id)
	if !ok {
		r.localError(mem, ErrNoSuchMsg)
		return
	}
	if msg.Author != mem.name && !r.isLeader(mem) {
		r.localError(mem, ErrNotAuthor)
		return
	}
	r.history.Delete(id)
	r.broadcast(protocol.ServerMessage{Type: protocol.MsgMessageDeleted, MessageID: id})
}

// handlePrivate delivers a whisper to the recipient and echoes it back to the
// sender. Whispers are never written to history.
func (r *Room) handlePrivate(m Private) {
	mem, ok := r.members[engine.Key(m.Name)]
	if !ok {
		return
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	to, ok := r.members[engine.Key(m.To)]
	if !ok {
		r.localError(mem, ErrNoSuchMember)
		return
	}
	msg := newChatMessage(mem.name, text, protocol.KindUser, true)
	note := protocol.ServerMessage{Type: protocol.MsgPrivateMessage, Chat: &msg, Recipient: to.name}
	r.send(to, note)
	if to != mem {
		r.send(mem, note)
	}
}

func (r *Room) handleTyping(m Typing) {
	k := engine.Key(m.Name)
	mem, ok := r.members[k]
	if !ok {
		return
	}
	note := protocol.ServerMessage{Type: protocol.MsgTyping, Author: mem.name, Active: m.Active}
	for key, other := range r.members {
		if key != k {
			r.send(other, note)
		}
	}
}

func (r *Room) isLeader(mem *member) bool {
	return r.leader != "" && r.leader == engine.Key(mem.name)
}

func (r *Room) leaderName() string {
	if mem, ok := r.members[r.leader]; ok {
		return mem.name
	}
	return ""
}

// send delivers without blocking; a full outbox reports failure.
func (r *Room) send(mem *member, msg protocol.ServerMessage) bool {
	select {
	case mem.out <- msg:
		return true
	default:
		return false
	}
}

// broadcast delivers to every member; members too slow to keep up are dropped
// from the room, which counts as a disconnect.
func (r *Room) broadcast(msg protocol.ServerMessage) {
	var dropped []string
	for k, mem := range r.members {
		if !r.send(mem, msg) {
			dropped = append(dropped, k)
		}
	}
	for _, k := range dropped {
		r.log.Warn("dropping slow member", zap.String("key", k))
		r.removeMember(k, reasonDropped)
	}
}

// mafiaBroadcast delivers only to living mafia roster members.
func (r *Room) mafiaBroadcast(msg protocol.ServerMessage) {
	for k, mem := range r.members {
		p, ok := r.state.Players[k]
		if ok && p.Alive && p.Role.Faction() == engine.FactionMafia {
			r.send(mem, msg)
		}
	}
}

// systemBroadcast records a SYSTEM line in history and sends it room-wide.
func (r *Room) systemBroadcast(text string) {
	msg := newChatMessage(SystemAuthor, text, protocol.KindSystem, false)
	r.history.Append(msg)
	r.broadcast(protocol.ServerMessage{Type: protocol.MsgChatMessage, Chat: &msg})
}

// localSystem sends a SYSTEM line to one member only; never recorded.
func (r *Room) localSystem(mem *member, text string) {
	msg := newChatMessage(SystemAuthor, text, protocol.KindSystem, false)
	r.send(mem, protocol.ServerMessage{Type: protocol.MsgChatMessage, Chat: &msg})
}

func (r *Room) localError(mem *member, err error) {
	r.localSystem(mem, err.Error())
}

func (r *Room) view() View {
	spectators := make(map[string]bool)
	for _, mem := range r.members {
		if mem.spectator {
			spectators[mem.name] = true
		}
	}
	muted := make(map[string]bool, len(r.muted))
	for k := range r.muted {
		muted[k] = true
	}
	return View{
		Code:       r.code,
		Game:       r.game,
		NumMembers: len(r.members),
		Leader:     r.leaderName(),
		Spectators: spectators,
		Muted:      muted,
		History:    r.history.All(),
		State:      r.state,
	}
}
