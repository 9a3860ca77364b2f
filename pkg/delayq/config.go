package delayq

import "time"

// Config holds the queue store configuration and the retry defaults
// carried onto every job that does not override them.
type Config struct {
	RedisURL           string        `env:"QUEUE_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	KeyPrefix          string        `env:"QUEUE_KEY_PREFIX" envDefault:"dripkit"`
	PromoteOrder       PromoteOrder  `env:"QUEUE_PROMOTE_ORDER" envDefault:"oldest-first"`
	PromoteBatch       int64         `env:"QUEUE_PROMOTE_BATCH" envDefault:"100"`
	DefaultMaxAttempts int           `env:"QUEUE_DEFAULT_MAX_ATTEMPTS" envDefault:"3"`
	BackoffBase        time.Duration `env:"QUEUE_BACKOFF_BASE" envDefault:"30s"`
	BackoffCap         time.Duration `env:"QUEUE_BACKOFF_CAP" envDefault:"1h"`
}
