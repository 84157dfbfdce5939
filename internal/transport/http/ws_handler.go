package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"mcq-chat-service/internal/app"
	"mcq-chat-service/internal/auth"
	"mcq-chat-service/internal/domain"
)

// WSHandler carries thread actions over a websocket: every inbound envelope is
// answered with a result or an error, and accepted actions from other
// connections on the same thread arrive as updates.
type WSHandler struct {
	service  *app.ThreadService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ThreadService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request and runs the read loop until the client goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	userID := auth.UserFromContext(r.Context())

	updates, cancel, err := h.service.Watch(r.Context(), userID, threadID)
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

	// single writer; gorilla connections do not allow concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				glog.V(2).Infof("thread %s: ws write error: %v", threadID, err)
				// unblock the read loop
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case res, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "update", Payload: res}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	view, err := h.service.GetThread(r.Context(), userID, threadID)
	switch {
	case err == nil:
		deliver(send, writerDone, outboundMessage[any]{Type: "thread", Payload: view})
	case !errors.Is(err, domain.ErrNotFound):
		deliver(send, writerDone, outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)})
	}

	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				glog.V(2).Infof("thread %s: ws read: %v", threadID, err)
			}
			break
		}
		if !deliver(send, writerDone, h.handle(r, userID, threadID, env)) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// deliver queues msg for the writer. It reports false once the writer has exited.
func deliver(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func (h *WSHandler) handle(r *http.Request, userID, threadID string, env domain.Envelope) outboundMessage[any] {
	action, err := domain.ParseAction(env)
	if err == nil {
		var res app.ActionResult
		res, err = h.service.HandleAction(r.Context(), userID, threadID, action)
		if err == nil {
			return outboundMessage[any]{Type: "result", Payload: res}
		}
	}
	err = domain.WithThread(err, threadID)
	if statusFor(err) == http.StatusInternalServerError {
		glog.Errorf("thread %s: ws action failed: %v", threadID, err)
	}
	return outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)}
}
