package http

import (
	"encoding/json"
	"net/http"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// WSHandler plays one puzzle game over a websocket and streams its live leaderboard.
type WSHandler struct {
	service  *app.PuzzleService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.PuzzleService) *WSHandler {
	return &WSHandler{
		service: service,
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

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// wsActor accepts query parameters because browsers cannot set headers on websocket dials.
func wsActor(r *http.Request) (domain.Actor, error) {
	if r.Header.Get(headerUserID) == "" {
		q := r.URL.Query()
		r.Header.Set(headerUserID, q.Get("userId"))
		if role := q.Get("role"); role != "" {
			r.Header.Set(headerRole, role)
		}
	}
	return actorFrom(r)
}

// ServeWS upgrades HTTP requests to websockets and wires them into the puzzle use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		http.Error(w, "missing gameId", http.StatusBadRequest)
		return
	}
	actor, err := wsActor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	updates, cancel, err := h.service.Watch(r.Context(), gameID, actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				glog.V(2).Infof("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	session := &wsSession{service: h.service, actor: actor, gameID: gameID}
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		typ, payload, err := session.handle(r, inbound)
		if err != nil {
			_, body := errorBodyFor(err)
			send <- outboundMessage[any]{Type: "error", Payload: body}
			continue
		}
		send <- outboundMessage[any]{Type: typ, Payload: payload}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// wsSession remembers the attempt the connection plays.
type wsSession struct {
	service   *app.PuzzleService
	actor     domain.Actor
	gameID    string
	attemptID string
}

type playPayload struct {
	AttemptID string          `json:"attemptId"`
	MoveData  json.RawMessage `json:"moveData"`
	State     json.RawMessage `json:"state"`
}

func (s *wsSession) handle(r *http.Request, in inboundMessage) (string, interface{}, error) {
	var p playPayload
	if len(in.Payload) > 0 {
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return "", nil, domain.NewValidationError(err, domain.FieldError{Field: "payload", Error: "malformed payload"})
		}
	}
	if p.AttemptID != "" {
		s.attemptID = p.AttemptID
	}
	ctx := r.Context()

	if in.Type == "start" {
		view, err := s.service.Start(ctx, s.actor, s.gameID)
		if err != nil {
			return "", nil, err
		}
		s.attemptID = view.ID
		return "attempt", view, nil
	}
	if s.attemptID == "" {
		return "", nil, domain.NewValidationError(nil, domain.FieldError{Field: "attemptId", Error: "send start first"})
	}

	switch in.Type {
	case "move":
		view, err := s.service.Move(ctx, s.actor, s.attemptID, app.MoveInput{MoveData: p.MoveData, State: p.State})
		return "attempt", view, err
	case "check":
		result, err := s.service.CheckSolution(ctx, s.actor, s.attemptID, p.State)
		return "checkResult", result, err
	case "hint":
		result, err := s.service.Hint(ctx, s.actor, s.attemptID)
		return "hint", result, err
	case "abandon":
		view, err := s.service.Abandon(ctx, s.actor, s.attemptID)
		return "attempt", view, err
	default:
		return "", nil, domain.NewValidationError(nil, domain.FieldError{Field: "type", Error: "unsupported message type"})
	}
}
