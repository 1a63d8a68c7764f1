package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/usageledger/pkg/entitlement"
	"github.com/dmitrymomot/usageledger/pkg/notifications"
	"github.com/dmitrymomot/usageledger/pkg/usage"
)

const paddleSignatureHeader = "Paddle-Signature"

// usageRequest is the body of check and consume. Field accepts canonical
// names and ledger aliases such as "messagesUsed"; count defaults to 1 when
// omitted.
type usageRequest struct {
	Field usage.Field `json:"field"`
	Count *int64      `json:"count"`
}

type notificationsPage struct {
	Items  []notifications.Notification `json:"items"`
	Unread int                          `json:"unread"`
}

func (h *Handler) getLimits(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	limits, err := h.usage.GetRemainingLimits(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, limits)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	userID, req, err := h.usageInput(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, h.usage.Check(r.Context(), userID, req.Field, *req.Count))
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	userID, req, err := h.usageInput(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.usage.Decrement(r.Context(), userID, req.Field, *req.Count)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, res)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.usage.ResetExpiredSubscription(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	opts := notifications.ListOptions{Limit: 50}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, r, fmt.Errorf("%w: limit %q", ErrInvalidBody, v))
			return
		}
		opts.Limit = n
	}
	opts.OnlyUnread = q.Get("unread") == "true"

	items, err := h.inbox.List(r.Context(), userID, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	unread, err := h.inbox.CountUnread(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []notifications.Notification{}
	}
	writeData(w, notificationsPage{Items: items, Unread: unread})
}

func (h *Handler) paddleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.writeError(w, r, errors.Join(ErrInvalidBody, err))
		return
	}

	if err := h.webhooks.HandleWebhook(r.Context(), payload, r.Header.Get(paddleSignatureHeader)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) usageInput(w http.ResponseWriter, r *http.Request) (uuid.UUID, usageRequest, error) {
	userID, err := userIDParam(r)
	if err != nil {
		return uuid.Nil, usageRequest{}, err
	}

	var req usageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return uuid.Nil, usageRequest{}, errors.Join(ErrInvalidBody, err)
	}
	if req.Count == nil {
		one := int64(1)
		req.Count = &one
	}
	// Unknown names pass through so the usage service reports them the usual way
	if f, err := entitlement.ParseField(string(req.Field)); err == nil {
		req.Field = f
	}
	return userID, req, nil
}

func userIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "userID")
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidUserID, raw)
	}
	return id, nil
}
