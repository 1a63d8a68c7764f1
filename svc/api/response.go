package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrymomot/usageledger/pkg/entitlement"
	"github.com/dmitrymomot/usageledger/pkg/logger"
	"github.com/dmitrymomot/usageledger/pkg/subscription"
	"github.com/dmitrymomot/usageledger/pkg/usage"
	"github.com/dmitrymomot/usageledger/svc/billing"
)

var (
	ErrInvalidUserID = errors.New("api.errors.invalid_user_id")
	ErrInvalidBody   = errors.New("api.errors.invalid_body")
)

// Response is the envelope of every JSON body.
type Response struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Data: data})
}

// statusOf maps a domain error onto an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, usage.ErrLimitExceeded):
		return http.StatusPaymentRequired
	case subscription.IsGateError(err):
		return http.StatusForbidden
	case errors.Is(err, subscription.ErrWebhookVerificationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, subscription.ErrSubscriptionNotFound),
		errors.Is(err, subscription.ErrVendorNotFound),
		errors.Is(err, usage.ErrLedgerNotFound):
		return http.StatusNotFound
	case errors.Is(err, usage.ErrInvalidField),
		errors.Is(err, usage.ErrInvalidCount),
		errors.Is(err, ErrInvalidUserID),
		errors.Is(err, ErrInvalidBody),
		errors.Is(err, subscription.ErrInvalidWebhookPayload),
		errors.Is(err, subscription.ErrMissingUserID),
		errors.Is(err, billing.ErrMissingPlanID):
		return http.StatusBadRequest
	default:
		// Includes entitlement.ErrPlanNotFound: a subscription pointing at an
		// unknown plan is a catalog problem, not a client one
		return http.StatusInternalServerError
	}
}

// codeOf returns the stable error code for err, the last segment of the
// first domain sentinel it wraps.
func codeOf(err error) string {
	for _, sentinel := range []error{
		usage.ErrLimitExceeded,
		subscription.ErrSubscriptionInactive,
		subscription.ErrTrialExpired,
		subscription.ErrPeriodExpired,
		subscription.ErrWebhookVerificationFailed,
		subscription.ErrSubscriptionNotFound,
		subscription.ErrVendorNotFound,
		usage.ErrLedgerNotFound,
		usage.ErrInvalidField,
		usage.ErrInvalidCount,
		ErrInvalidUserID,
		ErrInvalidBody,
		subscription.ErrInvalidWebhookPayload,
		subscription.ErrMissingUserID,
		billing.ErrMissingPlanID,
		entitlement.ErrPlanNotFound,
	} {
		if errors.Is(err, sentinel) {
			key := sentinel.Error()
			return key[strings.LastIndex(key, ".")+1:]
		}
	}
	return "internal_error"
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	detail := &ErrorDetail{Code: codeOf(err), Message: err.Error()}

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			logger.Error(err),
		)
		detail.Message = http.StatusText(status)
	}

	body := Response{Error: detail}
	var limitErr *usage.LimitExceededError
	if errors.As(err, &limitErr) {
		body.Data = limitErr
	}
	writeJSON(w, status, body)
}
