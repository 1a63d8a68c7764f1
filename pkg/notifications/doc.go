// Package notifications stores and delivers vendor notifications such as
// downgrade warnings and trial reminders.
//
// Manager persists each notification first and then hands it to a Deliverer.
// Delivery is best effort: once stored, a notification is never lost because
// a channel failed.
//
//	manager := notifications.NewManager(
//		notifications.NewMemoryStorage(),
//		notifications.NewMultiDeliverer([]notifications.Deliverer{
//			notifications.NewLogDeliverer(log),
//			notifications.NewEmailDeliverer(vendors, sender),
//		}),
//	)
//	err := manager.Notify(ctx, userID, "Plan downgraded", body,
//		notifications.TypeWarning, map[string]any{"kind": "past_due_downgrade"},
//		notifications.PriorityHigh)
//
// EmailDeliverer resolves the recipient through subscription.VendorStore and
// renders the message with email.RenderNotice.
package notifications
