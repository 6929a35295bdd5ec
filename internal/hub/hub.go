package hub

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/NarekCodes/global-chat/internal/room"
)

// ReservedCode is the permanent multi-session game lobby. It outlives having
// zero members and is created lazily on first reference. The generator
// alphabet below omits O, I, 0 and 1 as easily confused, which also keeps the
// reserved code out of its range.
const ReservedCode = "GLOBAL"

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const codeLength = 6

type HubMsg interface{ isHubMsg() }

type CreateReply struct {
	Code string
	Room *room.Room
}

// CreateRoom generates a fresh collision-checked code and creates the room.
type CreateRoom struct {
	Game  bool
	Reply chan CreateReply
}

// GetRoom resolves a code; the reply is nil for unknown codes, except the
// reserved one, which springs into existence.
type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

type RemoveRoom struct{ Code string }

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	cfg    room.Config
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, cfg room.Config, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				code := h.freshCode()
				rm := h.spawn(code, msg.Game, false)
				h.log.Info("room created", zap.String("code", code), zap.Bool("game", msg.Game))
				msg.Reply <- CreateReply{Code: code, Room: rm}

			case GetRoom:
				code := strings.ToUpper(strings.TrimSpace(msg.Code))
				rm := h.rooms[code]
				if rm == nil && code == ReservedCode {
					rm = h.spawn(code, true, true)
					h.log.Info("reserved lobby created", zap.String("code", code))
				}
				msg.Reply <- rm // may be nil

			case RemoveRoom:
				if msg.Code == ReservedCode {
					break
				}
				delete(h.rooms, msg.Code)
				h.log.Info("room removed", zap.String("code", msg.Code))

			case ShutdownHub:
				for _, rm := range h.rooms {
					rm.Inbox() <- room.Shutdown{}
				}
				clear(h.rooms)
				h.cancel()
			}
		}
	}
}

func (h *Hub) spawn(code string, game, permanent bool) *room.Room {
	rm := room.New(h.ctx, code, game, permanent, h.cfg, h.log, func() {
		// Runs on the room goroutine; hand removal back to the hub loop.
		select {
		case h.inbox <- RemoveRoom{Code: code}:
		case <-h.ctx.Done():
		}
	})
	h.rooms[code] = rm
	return rm
}

func (h *Hub) freshCode() string {
	for {
		code := generateCode()
		if _, taken := h.rooms[code]; !taken && code != ReservedCode {
			return code
		}
	}
}

func generateCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			// crypto/rand on a broken platform is a programming-environment
			// failure, not a user error.
			panic(err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code)
}
