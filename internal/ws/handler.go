package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/NarekCodes/global-chat/internal/hub"
	"github.com/NarekCodes/global-chat/internal/protocol"
	"github.com/NarekCodes/global-chat/internal/room"
)

const (
	readTimeout  = 120 * time.Second
	writeTimeout = 3 * time.Second
	outboxSize   = 64
)

// Handler upgrades the connection and runs the session: the first inbound
// message must be createRoom or joinRoom; everything after that is routed to
// the member's room.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		first, err := readMessage(r.Context(), conn)
		if err != nil {
			return
		}
		// Reject bad display names before any room exists; a room created for
		// a join that then fails would sit empty forever.
		if err := room.ValidateName(strings.TrimSpace(first.Name)); err != nil {
			writeLoginError(r.Context(), conn, "Join failed", err.Error())
			return
		}

		var rm *room.Room
		switch first.Type {
		case protocol.MsgCreateRoom:
			reply := make(chan hub.CreateReply, 1)
			h.Inbox() <- hub.CreateRoom{Game: first.Game, Reply: reply}
			rm = (<-reply).Room
		case protocol.MsgJoinRoom:
			if first.RoomCode == "" {
				writeLoginError(r.Context(), conn, "Join failed", "Room code must not be empty.")
				return
			}
			reply := make(chan *room.Room, 1)
			h.Inbox() <- hub.GetRoom{Code: first.RoomCode, Reply: reply}
			rm = <-reply
			if rm == nil {
				writeLoginError(r.Context(), conn, "Join failed", "Room not found.")
				return
			}
		default:
			writeLoginError(r.Context(), conn, "Join failed", "Expected createRoom or joinRoom.")
			return
		}

		out := make(chan protocol.ServerMessage, outboxSize)
		joined := make(chan room.JoinReply, 1)
		rm.Inbox() <- room.Join{Name: first.Name, Avatar: first.Avatar, Outbox: out, Reply: joined}
		// The room may have emptied and shut down between the hub lookup and
		// the join; its closed context unblocks the wait.
		var res room.JoinReply
		select {
		case res = <-joined:
		case <-rm.Done():
			writeLoginError(r.Context(), conn, "Join failed", "Room not found.")
			return
		}
		if res.Err != nil {
			writeLoginError(r.Context(), conn, "Join failed", res.Err.Error())
			return
		}
		name := res.Name
		defer func() {
			select {
			case rm.Inbox() <- room.Leave{Name: name}:
			case <-rm.Done():
			}
		}()
		log.Debug("session joined", zap.String("room", rm.Code()), zap.String("name", name))

		// Writer: drains the outbox until the room closes it.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				payload, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				werr := conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if werr != nil {
					return
				}
			}
			conn.Close(websocket.StatusNormalClosure, "room closed")
		}()

		// Reader loop.
		for {
			cm, err := readMessage(r.Context(), conn)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}
			switch cm.Type {
			case protocol.MsgSendChat:
				rm.Inbox() <- room.Chat{Name: name, Text: cm.Text}
			case protocol.MsgDeleteMessage:
				rm.Inbox() <- room.DeleteMessage{Name: name, MessageID: cm.MessageID}
			case protocol.MsgPrivateMessage:
				rm.Inbox() <- room.Private{Name: name, To: cm.To, Text: cm.Text}
			case protocol.MsgTypingStart:
				rm.Inbox() <- room.Typing{Name: name, Active: true}
			case protocol.MsgTypingStop:
				rm.Inbox() <- room.Typing{Name: name, Active: false}
			default:
				// Unknown inbound types are ignored rather than fatal.
			}
		}
	}
}

func readMessage(parent context.Context, conn *websocket.Conn) (protocol.ClientMessage, error) {
	ctx, cancel := context.WithTimeout(parent, readTimeout)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		return protocol.ClientMessage{}, err
	}
	var cm protocol.ClientMessage
	if err := json.Unmarshal(data, &cm); err != nil {
		return protocol.ClientMessage{}, err
	}
	return cm, nil
}

func writeLoginError(ctx context.Context, conn *websocket.Conn, title, message string) {
	payload, _ := json.Marshal(protocol.ServerMessage{
		Type:    protocol.MsgLoginError,
		Title:   title,
		Message: message,
	})
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
