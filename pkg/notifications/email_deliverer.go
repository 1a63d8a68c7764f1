package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/usageledger/pkg/email"
	"github.com/dmitrymomot/usageledger/pkg/subscription"
)

// EmailDeliverer emails notifications to the vendor's address.
type EmailDeliverer struct {
	vendors     subscription.VendorStore
	sender      email.EmailSender
	minPriority Priority
	footer      string
}

// EmailDelivererOption configures an EmailDeliverer.
type EmailDelivererOption func(*EmailDeliverer)

// WithMinPriority skips notifications below p. Default PriorityNormal.
func WithMinPriority(p Priority) EmailDelivererOption {
	return func(d *EmailDeliverer) {
		d.minPriority = p
	}
}

// WithEmailFooter sets the small print under every email.
func WithEmailFooter(footer string) EmailDelivererOption {
	return func(d *EmailDeliverer) {
		d.footer = footer
	}
}

// NewEmailDeliverer creates an email deliverer. Recipients are looked up in vendors.
func NewEmailDeliverer(vendors subscription.VendorStore, sender email.EmailSender, opts ...EmailDelivererOption) *EmailDeliverer {
	d := &EmailDeliverer{
		vendors:     vendors,
		sender:      sender,
		minPriority: PriorityNormal,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *EmailDeliverer) Deliver(ctx context.Context, notif Notification) error {
	if notif.Priority < d.minPriority {
		return nil
	}

	vendor, err := d.vendors.GetVendor(ctx, notif.UserID)
	if err != nil {
		if errors.Is(err, subscription.ErrVendorNotFound) {
			return errors.Join(ErrRecipientNotFound, err)
		}
		return fmt.Errorf("lookup recipient: %w", err)
	}
	if vendor.Email == "" {
		return fmt.Errorf("%w: vendor %s has no email", ErrRecipientNotFound, notif.UserID)
	}

	html, err := email.RenderNotice(email.Notice{
		Title:   notif.Title,
		Message: notif.Message,
		Footer:  d.footer,
	})
	if err != nil {
		return fmt.Errorf("render notification email: %w", err)
	}

	tag := ""
	if kind, ok := notif.Metadata["kind"].(string); ok {
		tag = kind
	}
	return d.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   vendor.Email,
		Subject:  notif.Title,
		BodyHTML: html,
		Tag:      tag,
	})
}
