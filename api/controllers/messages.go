package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oneman/oneman-backend/api/middleware"
	"github.com/oneman/oneman-backend/api/responses"
	"github.com/oneman/oneman-backend/api/validators"
	"github.com/oneman/oneman-backend/internal/messages"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/logger"
	"github.com/oneman/oneman-backend/pkg/pagination"
)

// DefaultStreamHeartbeat keeps idle streams open through proxies.
const DefaultStreamHeartbeat = 25 * time.Second

const (
	sseEventSyncComplete = "sync_complete"
	sseEventError        = "error"
)

type messageAppendRequest struct {
	Type     string `json:"type" validate:"required,oneof=text image"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"imageURL,omitempty"`
}

func (b messageAppendRequest) payload() messages.Payload {
	if b.Type == "image" {
		return messages.Image{URL: strings.TrimSpace(b.ImageURL)}
	}
	return messages.Text{Body: validators.SanitizeString(b.Text, 0)}
}

// MessageList reads a page of the group's log, oldest first.
func MessageList(svc messages.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "message service unavailable"))
			return
		}
		ref, err := validators.ParseGroupRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), middleware.ActorFromContext(r.Context()), ref, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// MessageAppend posts a text or image message as the caller.
func MessageAppend(svc messages.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "message service unavailable"))
			return
		}
		ref, err := validators.ParseGroupRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body messageAppendRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		msg, err := svc.Append(r.Context(), middleware.ActorFromContext(r.Context()), ref, body.payload())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, msg)
	}
}

// MessageDelete removes a message. Admin only.
func MessageDelete(svc messages.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "message service unavailable"))
			return
		}
		ref, err := validators.ParseGroupRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		messageID, err := validators.ParseUUIDParam(r, "messageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), middleware.ActorFromContext(r.Context()), ref, messageID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// MessageStream serves the log as server-sent events: the stored messages
// first, then sync_complete, then live created and deleted events until the
// client disconnects. The subscription opens before the replay so nothing
// posted in between is missed.
func MessageStream(svc messages.Service, heartbeat time.Duration, logg *logger.Logger) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = DefaultStreamHeartbeat
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "message service unavailable"))
			return
		}
		ref, err := validators.ParseGroupRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		actor := middleware.ActorFromContext(ctx)

		events, err := svc.Subscribe(ctx, actor, ref)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		replayed := map[uuid.UUID]struct{}{}
		params := pagination.Params{Limit: pagination.MaxLimit}
		for {
			page, err := svc.List(ctx, actor, ref, params)
			if err != nil {
				if logg != nil {
					logg.Error(ctx, "message stream replay failed", err)
				}
				_ = writeSSE(w, flusher, sseEventError, "", map[string]string{"message": "failed to load messages"})
				return
			}
			for i := range page.Messages {
				msg := page.Messages[i]
				replayed[msg.ID] = struct{}{}
				ev := messages.Event{Type: messages.EventCreated, GroupID: msg.GroupID, MessageID: msg.ID, Message: &msg}
				if err := writeSSE(w, flusher, string(ev.Type), msg.ID.String(), ev); err != nil {
					return
				}
			}
			if page.NextCursor == "" {
				break
			}
			params.Cursor = page.NextCursor
		}
		if err := writeSSE(w, flusher, sseEventSyncComplete, "", map[string]int{"count": len(replayed)}); err != nil {
			return
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case ev, ok := <-events:
				if !ok {
					// the hub dropped a subscriber that fell behind; the client
					// reconnects and replays
					return
				}
				if _, seen := replayed[ev.MessageID]; seen && ev.Type == messages.EventCreated {
					continue
				}
				if err := writeSSE(w, flusher, string(ev.Type), ev.MessageID.String(), ev); err != nil {
					return
				}
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event, id string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
