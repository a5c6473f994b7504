// Package hub fans game events out to connected overlay clients over
// websockets. Delivery is fire-and-forget: a slow client gets dropped, never
// blocks the game loop.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/kleoz/smashbet/game"
	"github.com/kleoz/smashbet/telemetry"
)

// Event is the wire envelope pushed to overlay clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	EventGameStatus         = "game-status"
	EventBonusUpdate        = "bonus-update"
	EventPredictionProgress = "prediction-progress"
)

// Hub tracks connected clients and broadcasts events to all of them. It also
// retains the last full game status and prediction tally so an overlay that
// connects mid-match catches up immediately.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	clients    map[*Client]bool

	mu        sync.Mutex
	lastState []byte
	lastTally []byte

	log *slog.Logger
}

func New() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		clients:    map[*Client]bool{},
		log:        slog.Default().With(slog.String("component", "hub")),
	}
}

// Run owns the client set; it exits when ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			telemetry.SetOverlayClients(0)
			return
		case c := <-h.register:
			h.clients[c] = true
			telemetry.SetOverlayClients(len(h.clients))
			h.log.Info("overlay client connected", slog.Int("clients", len(h.clients)))
			h.catchUp(c)
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				telemetry.SetOverlayClients(len(h.clients))
				h.log.Info("overlay client disconnected", slog.Int("clients", len(h.clients)))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
					telemetry.SetOverlayClients(len(h.clients))
					h.log.Warn("dropping slow overlay client")
				}
			}
		}
	}
}

// catchUp replays the retained state to a freshly connected client.
func (h *Hub) catchUp(c *Client) {
	h.mu.Lock()
	state, tally := h.lastState, h.lastTally
	h.mu.Unlock()
	for _, msg := range [][]byte{state, tally} {
		if msg == nil {
			continue
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (h *Hub) publish(eventType string, data any, retain *[]byte) {
	b, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		h.log.Error("encode event failed", slog.String("type", eventType), slog.Any("err", err))
		return
	}
	if retain != nil {
		h.mu.Lock()
		*retain = b
		h.mu.Unlock()
	}
	select {
	case h.broadcast <- b:
	default:
		h.log.Warn("broadcast queue full, dropping event", slog.String("type", eventType))
	}
}

// GameStatus pushes a full snapshot; retained for late joiners.
func (h *Hub) GameStatus(s game.Snapshot) {
	h.publish(EventGameStatus, s, &h.lastState)
}

// BonusUpdate pushes a per-redemption result; transient, not retained.
func (h *Hub) BonusUpdate(u game.BonusUpdate) {
	h.publish(EventBonusUpdate, u, nil)
}

// PredictionProgress pushes the live tally; retained for late joiners.
func (h *Hub) PredictionProgress(t game.PredictionTally) {
	h.publish(EventPredictionProgress, t, &h.lastTally)
}
