package email

// Config holds send-provider configuration. Tokens are optional so
// development environments can run on the DevSender instead.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	DevSenderDir         string `env:"EMAIL_DEV_SENDER_DIR" envDefault:"./tmp/emails"`
}
