package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// ErrNilPointer is returned when a nil pointer is provided to Load.
	ErrNilPointer = errors.New("nil pointer provided to config loader")

	// ErrParsingConfig is returned when environment variables cannot be
	// parsed into the config struct.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
)

var defaultEnvLoaded sync.Once

// Load populates the given configuration struct from environment
// variables based on its `env` field tags. On the first call it also
// loads the default .env file if one exists.
//
// Unlike a cached singleton loader, every call re-reads the environment:
// configuration instances are plain values owned by whoever constructs
// the component, so tests can load isolated copies freely.
//
// Example:
//
//	type QueueConfig struct {
//	    RedisURL string `env:"QUEUE_REDIS_URL,required"`
//	}
//
//	var cfg QueueConfig
//	if err := config.Load(&cfg); err != nil {
//	    // handle error
//	}
func Load[T any](v *T) error {
	defaultEnvLoaded.Do(func() {
		// The .env file is a dev convenience; its absence is fine.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure, for configuration the
// process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
