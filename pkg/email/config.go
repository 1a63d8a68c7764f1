package email

// Config holds email service configuration.
// Without Postmark tokens New falls back to the log sender, so development
// environments need no credentials. SupportEmail becomes Reply-To when set.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"noreply@example.com"`
	SupportEmail         string `env:"SUPPORT_EMAIL"`
}

// PostmarkEnabled reports whether both Postmark tokens are present.
func (c Config) PostmarkEnabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}
