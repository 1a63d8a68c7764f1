package subscription

import (
	"strings"

	"github.com/google/uuid"
)

// Status represents the current state of a subscription.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusTrialing Status = "TRIALING"
	StatusPastDue  Status = "PAST_DUE"
	StatusCanceled Status = "CANCELED"
	StatusExpired  Status = "EXPIRED"
)

// ParseStatus maps a provider or database status onto a Status.
// Unknown values are returned upper-cased as-is.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return StatusActive
	case "trialing":
		return StatusTrialing
	case "past_due":
		return StatusPastDue
	case "canceled", "cancelled":
		return StatusCanceled
	case "expired":
		return StatusExpired
	default:
		return Status(strings.ToUpper(s))
	}
}

// Usable reports whether the status lets the subscription consume quota.
func (s Status) Usable() bool {
	return s == StatusActive || s == StatusTrialing
}

// Terminal reports whether no further usage is possible without a new checkout.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusExpired
}

// Vendor is the tenant record a subscription belongs to.
type Vendor struct {
	UserID uuid.UUID
	Email  string
	Name   string

	// AllFeaturesAccess bypasses the validity gate and every quota.
	AllFeaturesAccess bool
}

// Access is the outcome of a successful gate validation.
// Subscription is nil when Override is set.
type Access struct {
	Subscription *Subscription
	Override     bool
}
