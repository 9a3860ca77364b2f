// Package httpserver hosts the delivery engine's trigger surface: a
// net/http wrapper with graceful shutdown and health probes. The
// engine has no resident workers, so this server and the cron hitting
// it are the only way queued work ever executes.
package httpserver
