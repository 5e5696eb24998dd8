package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSHandler upgrades HTTP requests to websockets and translates inbound
// messages into coordinator commands. Rejections go back to the offending
// connection only; everything else reaches clients through the hub broadcast.
type WSHandler struct {
	coordinator *app.Coordinator
	hub         *Hub
	upgrader    websocket.Upgrader
}

func NewWSHandler(coordinator *app.Coordinator, hub *Hub) *WSHandler {
	return &WSHandler{
		coordinator: coordinator,
		hub:         hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	DisplayName string `json:"displayName"`
}

type questionPayload struct {
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	TimeLimitSeconds   int      `json:"timeLimitSeconds"`
	Category           string   `json:"category"`
}

type answerPayload struct {
	PlayerID    string `json:"playerId"`
	AnswerIndex int    `json:"answerIndex"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the connection's read loop.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	c := h.hub.register(conn)
	defer conn.Close()
	defer func() {
		// Connection gone: flag the player disconnected and let the
		// coordinator's grace timer decide on removal.
		h.coordinator.Leave(c.id)
		h.hub.unregister(c)
	}()

	// New connections get the current state straight away.
	c.enqueue(app.Event{Type: app.EventSessionState, Payload: h.coordinator.Snapshot()})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		h.dispatch(r, c, inbound)
	}
}

func (h *WSHandler) dispatch(r *http.Request, c *client, inbound inboundMessage) {
	switch inbound.Type {
	case "start-session":
		if _, err := h.coordinator.StartSession(); err != nil {
			h.reject(c, err)
		}

	case "end-session":
		if _, err := h.coordinator.EndSession(r.Context()); err != nil {
			h.reject(c, err)
		}

	case "push-question":
		var payload questionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.reject(c, errors.New("invalid question payload"))
			return
		}
		q, err := domain.NewQuestion(
			payload.Text,
			payload.Options,
			payload.CorrectOptionIndex,
			time.Duration(payload.TimeLimitSeconds)*time.Second,
			payload.Category,
		)
		if err != nil {
			h.reject(c, err)
			return
		}
		if err := h.coordinator.PushQuestion(q); err != nil {
			h.reject(c, err)
		}

	case "next-question":
		if err := h.coordinator.NextQuestion(r.Context()); err != nil {
			h.reject(c, err)
		}

	case "join":
		var payload joinPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.DisplayName == "" {
			h.reject(c, errors.New("join requires a display name"))
			return
		}
		h.coordinator.Join(c.id, payload.DisplayName)

	case "submit-answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.reject(c, errors.New("invalid answer payload"))
			return
		}
		if err := h.coordinator.SubmitAnswer(payload.PlayerID, payload.AnswerIndex); err != nil {
			h.reject(c, err)
		}

	default:
		h.reject(c, errors.New("unsupported message type"))
	}
}

// reject reports an expected command failure to the originating client.
func (h *WSHandler) reject(c *client, err error) {
	c.enqueue(app.Event{Type: "error", Payload: errorPayload{Message: err.Error()}})
}
