package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/groupchat-games/trivia/internal/auth"
	"github.com/groupchat-games/trivia/internal/domain"
	"github.com/groupchat-games/trivia/internal/errors"
	"github.com/groupchat-games/trivia/internal/event"
	"github.com/groupchat-games/trivia/internal/game"
	"github.com/groupchat-games/trivia/internal/room"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 32
)

// Notification is the envelope for every server-pushed frame.
type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Message is one client-sent frame. Action selects the handler, the other
// fields are per-action arguments.
type Message struct {
	Action   string `json:"action"`
	RoomCode string `json:"room_code,omitempty"`
	PlayerID string `json:"player_id,omitempty"`
	Answer   string `json:"answer,omitempty"`
}

type hubConfig struct {
	EventBus *event.Bus
	Registry *room.Registry
	Game     *game.Service
	Binder   *auth.Binder
}

// Hub owns the websocket side of the transport: it upgrades connections,
// binds them to players through the auth binder, fans engine events out to
// the connections in the event's room, and routes client frames into the
// engine. Privileged payload variants go only to connections bound to the
// room's creator.
type Hub struct {
	reg      *room.Registry
	game     *game.Service
	binder   *auth.Binder
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	roomCode   string
	privileged bool
}

func newHub(c hubConfig) *Hub {
	h := &Hub{
		reg:    c.Registry,
		game:   c.Game,
		binder: c.Binder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		rooms: make(map[string]map[*client]struct{}),
	}

	for _, name := range []string{
		domain.EventNamePlayerListUpdated,
		domain.EventNameGameStarted,
		domain.EventNameQuestionStarted,
		domain.EventNameAllPlayersAnswered,
		domain.EventNameAnswerRevealed,
		domain.EventNameFinalSprintStarted,
		domain.EventNameFinalSprintUpdate,
		domain.EventNameGameFinished,
	} {
		c.EventBus.Subscribe(name, h.handleEvent)
	}

	return h
}

func (h *Hub) serveWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "api: websocket upgrade failed", "error", err)
		return
	}

	cl := &client{
		id:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	go cl.writePump()
	go cl.readPump()
}

// handleEvent routes one engine event to the connections in its room.
func (h *Hub) handleEvent(ctx context.Context, e event.Event) error {
	switch ev := e.(type) {
	case domain.EventPlayerListUpdated:
		h.broadcast(ev.RoomCode, e.Name(), map[string]any{"players": ev.Players})

	case domain.EventGameStarted:
		h.broadcast(ev.RoomCode, e.Name(), map[string]any{"room_code": ev.RoomCode})

	case domain.EventQuestionStarted:
		h.broadcastQuestion(ev)

	case domain.EventAllPlayersAnswered:
		h.broadcast(ev.RoomCode, e.Name(), map[string]any{"room_code": ev.RoomCode})

	case domain.EventAnswerRevealed:
		h.broadcast(ev.RoomCode, e.Name(), map[string]any{
			"correct_answer": ev.CorrectAnswer,
			"vote_stats":     ev.VoteStats,
		})

	case domain.EventFinalSprintStarted:
		h.broadcast(ev.RoomCode, e.Name(), map[string]any{
			"goal":      ev.Goal,
			"positions": ev.Positions,
			"question":  ev.Question,
		})

	case domain.EventFinalSprintUpdate:
		h.broadcast(ev.RoomCode, e.Name(), map[string]any{
			"goal":      ev.Goal,
			"positions": ev.Positions,
			"question":  ev.Question,
		})

	case domain.EventGameFinished:
		h.broadcast(ev.RoomCode, e.Name(), map[string]any{"summary": ev.Summary})
	}
	return nil
}

func (h *Hub) broadcast(roomCode, name string, data any) {
	frame, err := json.Marshal(Notification{Event: name, Data: data})
	if err != nil {
		slog.Error("api: marshal notification failed", "event", name, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.rooms[roomCode] {
		cl.enqueue(frame)
	}
}

// broadcastQuestion splits the fanout: creator connections get the payload
// with the correct answer, everyone else the redacted one.
func (h *Hub) broadcastQuestion(ev domain.EventQuestionStarted) {
	pub, err := json.Marshal(Notification{
		Event: ev.Name(),
		Data:  map[string]any{"question": ev.Question},
	})
	if err != nil {
		slog.Error("api: marshal notification failed", "event", ev.Name(), "error", err)
		return
	}
	priv, err := json.Marshal(Notification{
		Event: ev.Name(),
		Data:  map[string]any{"question": ev.Privileged},
	})
	if err != nil {
		slog.Error("api: marshal notification failed", "event", ev.Name(), "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.rooms[ev.RoomCode] {
		cl.mu.Lock()
		privileged := cl.privileged
		cl.mu.Unlock()
		if privileged {
			cl.enqueue(priv)
		} else {
			cl.enqueue(pub)
		}
	}
}

func (h *Hub) attach(cl *client, roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old := cl.room(); old != "" && old != roomCode {
		h.detachLocked(cl, old)
	}
	if h.rooms[roomCode] == nil {
		h.rooms[roomCode] = make(map[*client]struct{})
	}
	h.rooms[roomCode][cl] = struct{}{}
}

func (h *Hub) detach(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rc := cl.room(); rc != "" {
		h.detachLocked(cl, rc)
	}
}

func (h *Hub) detachLocked(cl *client, roomCode string) {
	if set, ok := h.rooms[roomCode]; ok {
		delete(set, cl)
		if len(set) == 0 {
			delete(h.rooms, roomCode)
		}
	}
}

func (c *client) room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomCode
}

// enqueue drops the frame when the client's buffer is full. A reader that
// slow is better served by the reconnect path than by blocking the fanout.
func (c *client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.detach(c)
		c.hub.binder.Unbind(c.id)
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("api: websocket read failed", "connection", c.id, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError(errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("malformed message")))
			continue
		}
		c.handle(msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) handle(msg Message) {
	switch msg.Action {
	case "join_room":
		c.joinRoom(msg)
	case "submit_answer":
		c.submitAnswer(msg)
	case "request_game_state":
		c.gameState()
	default:
		c.sendError(errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown action %q", msg.Action)))
	}
}

// joinRoom binds this connection to an already joined player. The player id
// must resolve to the named room; a connection never speaks for a player it
// is not bound to.
func (c *client) joinRoom(msg Message) {
	roomCode := strings.ToUpper(msg.RoomCode)

	actual, err := c.hub.reg.PlayerRoom(msg.PlayerID)
	if err != nil {
		c.sendError(err)
		return
	}
	if actual != roomCode {
		c.sendError(errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("player does not belong to room %s", roomCode)))
		return
	}

	privileged := false
	err = c.hub.reg.View(roomCode, func(ss *domain.Session) error {
		privileged = ss.CreatorID == msg.PlayerID
		return nil
	})
	if err != nil {
		c.sendError(err)
		return
	}

	c.hub.binder.Bind(c.id, msg.PlayerID)
	c.mu.Lock()
	c.roomCode = roomCode
	c.privileged = privileged
	c.mu.Unlock()
	c.hub.attach(c, roomCode)

	c.notify("room_joined", map[string]any{
		"room_code": roomCode,
		"player_id": msg.PlayerID,
	})
}

func (c *client) submitAnswer(msg Message) {
	playerID, ok := c.hub.binder.PlayerID(c.id)
	if !ok {
		c.sendError(errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("connection is not bound to a player, join a room first")))
		return
	}
	if msg.PlayerID != "" && !c.hub.binder.Owns(c.id, msg.PlayerID) {
		c.sendError(errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("connection is not bound to player %s", msg.PlayerID)))
		return
	}

	result, err := c.hub.game.SubmitAnswer(context.Background(), game.SubmitAnswerRequest{
		PlayerID: playerID,
		Answer:   msg.Answer,
	})
	if err != nil {
		c.sendError(err)
		return
	}

	c.notify("answer_result", result)
}

// gameState replays the room's current state to one connection, for clients
// that reconnect mid-game.
func (c *client) gameState() {
	roomCode := c.room()
	if roomCode == "" {
		c.sendError(errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("connection is not bound to a player, join a room first")))
		return
	}

	c.mu.Lock()
	privileged := c.privileged
	c.mu.Unlock()

	var state map[string]any
	err := c.hub.reg.View(roomCode, func(ss *domain.Session) error {
		state = map[string]any{
			"room_code": ss.RoomCode,
			"status":    ss.Status,
			"phase":     ss.Phase,
		}
		return nil
	})
	if err != nil {
		c.sendError(err)
		return
	}

	payload, err := c.hub.game.GetCurrentQuestion(game.GetQuestionRequest{
		RoomCode:   roomCode,
		Privileged: privileged,
	})
	if err == nil {
		state["question"] = payload
	}

	c.notify("game_state", state)
}

func (c *client) notify(name string, data any) {
	frame, err := json.Marshal(Notification{Event: name, Data: data})
	if err != nil {
		slog.Error("api: marshal notification failed", "event", name, "error", err)
		return
	}
	c.enqueue(frame)
}

func (c *client) sendError(err error) {
	e := errors.Convert(err)
	c.notify("error", map[string]any{"message": e.Message})
}
