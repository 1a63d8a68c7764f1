package email_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usageledger/pkg/email"
)

func TestSendEmailParams_Validate(t *testing.T) {
	t.Parallel()

	valid := email.SendEmailParams{SendTo: "user@example.com", Subject: "Hi", BodyHTML: "<p>hi</p>"}

	tests := []struct {
		name    string
		mutate  func(*email.SendEmailParams)
		wantErr bool
	}{
		{name: "valid", mutate: func(*email.SendEmailParams) {}},
		{name: "missing recipient", mutate: func(p *email.SendEmailParams) { p.SendTo = "" }, wantErr: true},
		{name: "malformed recipient", mutate: func(p *email.SendEmailParams) { p.SendTo = "not-an-email" }, wantErr: true},
		{name: "blank subject", mutate: func(p *email.SendEmailParams) { p.Subject = "  " }, wantErr: true},
		{name: "empty body", mutate: func(p *email.SendEmailParams) { p.BodyHTML = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, email.ErrInvalidParams)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("log sender without tokens", func(t *testing.T) {
		t.Parallel()

		sender, err := email.New(email.Config{SenderEmail: "noreply@example.com"}, nil)
		require.NoError(t, err)
		assert.IsType(t, &email.LogSender{}, sender)
	})

	t.Run("postmark with tokens", func(t *testing.T) {
		t.Parallel()

		sender, err := email.New(email.Config{
			PostmarkServerToken:  "server",
			PostmarkAccountToken: "account",
			SenderEmail:          "noreply@example.com",
		}, nil)
		require.NoError(t, err)
		_, isLog := sender.(*email.LogSender)
		assert.False(t, isLog)
	})

	t.Run("postmark rejects bad sender", func(t *testing.T) {
		t.Parallel()

		_, err := email.New(email.Config{
			PostmarkServerToken:  "server",
			PostmarkAccountToken: "account",
			SenderEmail:          "nope",
		}, nil)
		assert.ErrorIs(t, err, email.ErrInvalidConfig)
	})
}

func TestNewPostmarkClient_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  email.Config
		msg  string
	}{
		{
			name: "empty server token",
			cfg:  email.Config{PostmarkAccountToken: "a", SenderEmail: "s@example.com"},
			msg:  "PostmarkServerToken is required",
		},
		{
			name: "empty account token",
			cfg:  email.Config{PostmarkServerToken: "s", SenderEmail: "s@example.com"},
			msg:  "PostmarkAccountToken is required",
		},
		{
			name: "invalid support email",
			cfg:  email.Config{PostmarkServerToken: "s", PostmarkAccountToken: "a", SenderEmail: "s@example.com", SupportEmail: "bad"},
			msg:  "SupportEmail must be a valid email address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := email.NewPostmarkClient(tt.cfg)
			assert.Nil(t, client)
			assert.ErrorIs(t, err, email.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sender := email.NewLogSender(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := sender.SendEmail(context.Background(), email.SendEmailParams{
		SendTo:   "vendor@example.com",
		Subject:  "Trial ending",
		BodyHTML: "<p>soon</p>",
		Tag:      "trial_ending",
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"to":"vendor@example.com"`)
	assert.Contains(t, buf.String(), `"tag":"trial_ending"`)

	err = sender.SendEmail(context.Background(), email.SendEmailParams{})
	assert.ErrorIs(t, err, email.ErrInvalidParams)
}

func TestRenderNotice(t *testing.T) {
	t.Parallel()

	html, err := email.RenderNotice(email.Notice{
		Title:   "Plan <downgraded>",
		Message: "Your payment failed.\n\nYou are now on the free plan.",
		Footer:  "usage ledger",
	})
	require.NoError(t, err)
	assert.Contains(t, html, "Plan &lt;downgraded&gt;")
	assert.Contains(t, html, "<p style=\"margin: 0 0 12px 0; line-height: 1.5;\">Your payment failed.</p>")
	assert.Contains(t, html, "You are now on the free plan.")
	assert.Contains(t, html, "usage ledger")
}
