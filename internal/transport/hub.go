package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/storyduet/storyduet-go/internal/constants"
	"github.com/storyduet/storyduet-go/internal/domain"
	"github.com/storyduet/storyduet-go/internal/session"
	"go.uber.org/zap"
)

// Command is what a connected client sends to drive the session.
type Command struct {
	Action    string `json:"action"`
	Genre     string `json:"genre,omitempty"`
	Duration  int    `json:"duration,omitempty"` // seconds
	Mode      string `json:"mode,omitempty"`
	CreatorID string `json:"creator_id,omitempty"`
	Text      string `json:"text,omitempty"`
	StoryID   string `json:"story_id,omitempty"`
	Onboarded bool   `json:"onboarded,omitempty"`
}

// AnalysisCache serves completed analyses for result-screen reloads.
// A nil record with a nil error means the id is not cached.
type AnalysisCache interface {
	GetCachedAnalysis(ctx context.Context, storyID string) (*domain.AnalysisRecord, error)
}

// StoryLoader loads a saved story from the durable store, nil when absent.
type StoryLoader interface {
	GetByID(ctx context.Context, id string) (*domain.StoryDraft, error)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans machine events out to websocket clients and feeds their commands
// back into the machine. Slow clients are dropped rather than allowed to
// stall the broadcast path.
type Hub struct {
	machine  *session.Machine
	analyses AnalysisCache
	stories  StoryLoader
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub(machine *session.Machine, analyses AnalysisCache, stories StoryLoader, logger *zap.Logger) *Hub {
	h := &Hub{
		machine:  machine,
		analyses: analyses,
		stories:  stories,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	machine.Subscribe(h.broadcast)
	return h
}

// ServeHTTP upgrades the connection and runs the read/write pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, constants.WebSocketConfig.SendQueueSize),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("Client connected", zap.String("remote", conn.RemoteAddr().String()))

	h.sendSnapshot(c)

	go h.writePump(c)
	h.readPump(r.Context(), c)
}

// sendSnapshot gives a fresh client the current state so it can render
// without waiting for the next transition.
func (h *Hub) sendSnapshot(c *client) {
	snapshot := h.machine.Snapshot()
	h.send(c, map[string]any{
		"kind":              "snapshot",
		"session":           snapshot,
		"remaining_seconds": int(h.machine.RemainingTime().Seconds()),
	})
}

func (h *Hub) broadcast(ev session.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Event encode failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Queue full: the client is too slow to keep. Closing the conn
			// unwinds its readPump, which owns the send-channel teardown;
			// closing the channel here would race the command path.
			delete(h.clients, c)
			c.conn.Close()
		}
	}
	h.mu.Unlock()
}

func (h *Hub) writePump(c *client) {
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketConfig.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Debug("Client write failed", zap.Error(err))
			break
		}
	}
	c.conn.Close()
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	defer h.drop(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			h.logger.Debug("Client read closed", zap.Error(err))
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.reply(c, "error", "malformed command")
			continue
		}

		if err := h.dispatch(ctx, c, cmd); err != nil {
			h.reply(c, "error", err.Error())
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, c *client, cmd Command) error {
	switch cmd.Action {
	case "complete_loading":
		return h.machine.CompleteLoading(cmd.Onboarded)
	case "complete_onboarding":
		return h.machine.CompleteOnboarding()
	case "start":
		genre, err := domain.ParseGenre(cmd.Genre)
		if err != nil {
			return err
		}
		mode, err := domain.ParseMode(cmd.Mode)
		if err != nil {
			return err
		}
		settings := domain.SessionSettings{
			Genre:     genre,
			Duration:  time.Duration(cmd.Duration) * time.Second,
			Mode:      mode,
			CreatorID: cmd.CreatorID,
		}
		return h.machine.StartSession(ctx, settings)
	case "submit":
		return h.machine.SubmitTurn(ctx, cmd.Text)
	case "end":
		return h.machine.EndSession(ctx)
	case "quit":
		return h.machine.RequestQuit()
	case "confirm_quit":
		return h.machine.ConfirmQuit()
	case "cancel_quit":
		return h.machine.CancelQuit()
	case "save":
		return h.machine.ChooseSave(ctx)
	case "discard":
		return h.machine.ChooseDiscard(ctx)
	case "reset":
		return h.machine.Reset()
	case "fetch_story":
		return h.sendStory(ctx, c, cmd.StoryID)
	default:
		h.logger.Warn("Unknown command", zap.String("action", cmd.Action))
		return nil
	}
}

// sendStory serves a saved story for a result-screen reload: the analysis
// cache answers first, the durable store backs it up.
func (h *Hub) sendStory(ctx context.Context, c *client, storyID string) error {
	if storyID == "" {
		return fmt.Errorf("story_id is required")
	}

	if h.analyses != nil {
		record, err := h.analyses.GetCachedAnalysis(ctx, storyID)
		if err != nil {
			h.logger.Debug("Analysis cache read failed", zap.Error(err))
		} else if record != nil {
			h.send(c, map[string]any{"kind": "story", "story_id": storyID, "analysis": record})
			return nil
		}
	}

	if h.stories == nil {
		return fmt.Errorf("story lookup is unavailable")
	}
	story, err := h.stories.GetByID(ctx, storyID)
	if err != nil {
		return err
	}
	if story == nil {
		return fmt.Errorf("story %s not found", storyID)
	}
	h.send(c, map[string]any{"kind": "story", "story_id": storyID, "story": story})
	return nil
}

func (h *Hub) reply(c *client, kind, message string) {
	h.send(c, map[string]string{"kind": kind, "message": message})
}

// send queues a payload without blocking; a full queue means the client is
// about to be dropped anyway.
func (h *Hub) send(c *client, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Payload encode failed", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// drop runs exactly once per client, from its readPump exit, and is the only
// closer of the send channel. That makes sends from the command path safe for
// the whole life of the reader.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.conn.Close()
	close(c.send)
}

// Close disconnects every client. Each readPump then unwinds through drop.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}
