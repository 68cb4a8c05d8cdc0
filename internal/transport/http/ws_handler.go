// Package http exposes the session engine over websockets and the paper,
// cache, result, and history surfaces over plain REST.
package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"exam-practice-service/internal/app"
	"exam-practice-service/internal/domain"
)

type WSHandler struct {
	manager  *app.Manager
	upgrader websocket.Upgrader
}

func NewWSHandler(manager *app.Manager) *WSHandler {
	return &WSHandler{
		manager: manager,
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

type selectPayload struct {
	OptionIndex int `json:"option_index"`
}

type jumpPayload struct {
	Index int `json:"index"`
}

type confirmPrompt struct {
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs one session over the socket. The
// session starts when the socket opens and is released when it closes, so a
// dropped connection abandons the attempt the same way closing the tab does.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	subject, err := domain.ParseSubject(r.URL.Query().Get("subject"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	paperID := r.URL.Query().Get("paper_id")
	year := r.URL.Query().Get("year")
	if paperID == "" && year == "" {
		http.Error(w, "missing paper_id or year", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Starting by year alone resolves the paper lazily, for clients that
	// never fetched a listing.
	if paperID == "" {
		paper, err := h.manager.ResolvePaperByYear(r.Context(), subject, year)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		paperID = paper.ID
	}

	session, err := h.manager.StartSession(r.Context(), subject, paperID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.manager.Release(session.ID)

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "snapshot", Payload: snap}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.dispatch(session, inbound, send); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(session *app.Session, inbound inboundMessage, send chan<- outboundMessage[any]) error {
	switch inbound.Type {
	case "select_answer":
		var payload selectPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return domain.ErrInvalidTransition
		}
		return session.SelectAnswer(payload.OptionIndex)
	case "next":
		return session.GoNext()
	case "previous":
		return session.GoPrevious()
	case "jump":
		var payload jumpPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return domain.ErrInvalidTransition
		}
		return session.JumpTo(payload.Index)
	case "retry_load":
		return session.RetryLoad()
	case "request_submit":
		answered, total, err := session.RequestSubmit()
		if err != nil {
			return err
		}
		send <- outboundMessage[any]{Type: "confirm_prompt", Payload: confirmPrompt{Answered: answered, Total: total}}
		return nil
	case "cancel_submit":
		return session.CancelSubmit()
	case "confirm_submit":
		return session.ConfirmSubmit(session.Context())
	default:
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		return nil
	}
}
