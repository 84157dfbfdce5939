package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/golang/glog"

	"mcq-chat-service/internal/app"
	"mcq-chat-service/internal/auth"
	"mcq-chat-service/internal/domain"
	"mcq-chat-service/internal/transcript"
)

const (
	maxPageLimit = 100
	// statusClientClosedRequest is reported when the caller gave up before the action ran.
	statusClientClosedRequest = 499
)

// Handler exposes the thread service over REST and websockets.
type Handler struct {
	service *app.ThreadService
	ws      *WSHandler
}

func NewHandler(service *app.ThreadService) *Handler {
	return &Handler{service: service, ws: NewWSHandler(service)}
}

// Routes builds the router. Every /threads route requires a bearer token.
func (h *Handler) Routes(verifier *auth.Verifier, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))
		r.Get("/threads", h.listThreads)
		r.Route("/threads/{threadID}", func(r chi.Router) {
			r.Get("/", h.getThread)
			r.Delete("/", h.deleteThread)
			r.Post("/actions", h.postAction)
			r.Get("/items", h.listItems)
			r.Get("/transcript", h.getTranscript)
			r.Get("/ws", h.ws.ServeWS)
		})
	})
	return r
}

type errorPayload struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	ThreadID   string `json:"threadId,omitempty"`
	QuestionID string `json:"questionId,omitempty"`
	Retryable  bool   `json:"retryable"`
}

func (h *Handler) postAction(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	var env domain.Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&env); err != nil {
		writeError(w, &domain.Error{Kind: domain.ErrUnsupportedAction, ThreadID: threadID, Detail: "body is not an action envelope"})
		return
	}
	action, err := domain.ParseAction(env)
	if err != nil {
		writeError(w, domain.WithThread(err, threadID))
		return
	}
	res, err := h.service.HandleAction(r.Context(), auth.UserFromContext(r.Context()), threadID, action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) getThread(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetThread(r.Context(), auth.UserFromContext(r.Context()), chi.URLParam(r, "threadID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) getTranscript(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetThread(r.Context(), auth.UserFromContext(r.Context()), chi.URLParam(r, "threadID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(transcript.Format(view.History)))
}

func (h *Handler) deleteThread(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteThread(r.Context(), auth.UserFromContext(r.Context()), chi.URLParam(r, "threadID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ThreadItems(r.Context(), auth.UserFromContext(r.Context()), chi.URLParam(r, "threadID"), pageRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) listThreads(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListThreads(r.Context(), auth.UserFromContext(r.Context()), pageRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func pageRequest(r *http.Request) domain.PageRequest {
	q := r.URL.Query()
	req := domain.PageRequest{After: q.Get("after"), Order: domain.OrderAsc}
	if q.Get("order") == string(domain.OrderDesc) {
		req.Order = domain.OrderDesc
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		req.Limit = min(n, maxPageLimit)
	}
	return req
}

// statusFor maps error kinds onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAction), errors.Is(err, domain.ErrQuizAlreadyFinished):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnsupportedAction):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func toErrorPayload(err error) errorPayload {
	p := errorPayload{Kind: domain.KindName(err), Message: err.Error(), Retryable: domain.Retryable(err)}
	var de *domain.Error
	if errors.As(err, &de) {
		p.ThreadID = de.ThreadID
		p.QuestionID = de.QuestionID
	}
	if p.Kind == "internal" {
		// infrastructure details stay in the logs
		p.Message = "internal error"
	}
	return p
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		glog.Errorf("request failed: %v", err)
	} else {
		glog.V(2).Infof("request rejected: %v", err)
	}
	if domain.Retryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, toErrorPayload(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Warningf("write response: %v", err)
	}
}
