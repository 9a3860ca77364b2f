package campaign

import "time"

// Config holds the campaign engine settings.
type Config struct {
	// SendBatchSize caps recipients per send-batch job; larger campaigns
	// chain follow-up batch jobs.
	SendBatchSize int `env:"CAMPAIGN_SEND_BATCH_SIZE" envDefault:"50"`

	// WatchdogGrace is how far past its due time a scheduled campaign
	// may sit before the watchdog treats it as missed.
	WatchdogGrace time.Duration `env:"CAMPAIGN_WATCHDOG_GRACE" envDefault:"5m"`

	// WatchdogRequeueDelay is the fixed delay applied when the watchdog
	// re-enqueues a missed campaign.
	WatchdogRequeueDelay time.Duration `env:"CAMPAIGN_WATCHDOG_REQUEUE_DELAY" envDefault:"30s"`

	// CredentialTTL bounds how long a brand's credential check result is
	// served from cache before re-validation.
	CredentialTTL time.Duration `env:"CAMPAIGN_CREDENTIAL_TTL" envDefault:"10m"`
}
