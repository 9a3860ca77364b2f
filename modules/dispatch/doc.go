// Package dispatch is the externally-triggered execution layer of the
// delivery engine. It owns no clock and no long-lived workers: an
// external scheduler (cron, a scheduled HTTP call) hits the trigger
// surface periodically, and each hit pops at most one ready job per
// queue and runs the registered handler.
//
// Handler outcomes fall into three classes. A nil error completes the
// job. ErrSkip drops the job without retry because its precondition no
// longer holds. ErrIntegrity terminally fails the job because retrying
// cannot repair missing or malformed data. Every other error is treated
// as transient and re-enqueued with exponential backoff until the job's
// retry budget runs out, at which point the queue's ExhaustedFunc is
// invoked so the owning engine can fail its domain record.
//
// Because trigger windows can overlap, handlers must tolerate
// at-least-once and possibly concurrent execution.
package dispatch
