// Package email sends transactional emails for ledger notifications.
//
// EmailSender is implemented by the Postmark client for production and by
// LogSender, which only logs, for development. New picks one from Config:
//
//	sender, err := email.New(cfg, log)
//	if err != nil {
//		return err
//	}
//	html, err := email.RenderNotice(email.Notice{Title: "Trial ending", Message: body})
//	if err != nil {
//		return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   "vendor@example.com",
//		Subject:  "Trial ending",
//		BodyHTML: html,
//		Tag:      "trial_ending",
//	})
//
// Errors wrap ErrInvalidConfig, ErrInvalidParams or ErrFailedToSendEmail.
package email
