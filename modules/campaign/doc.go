// Package campaign schedules and delivers one-shot email campaigns.
//
// The Scheduler translates user intent into queued jobs: an immediate
// send lands on the campaign-sends queue, a timed send sits on the
// campaign-scheduler queue until its due time. Delivery happens in
// batches chained through the queue, one batch job per recipient page,
// so a large campaign never holds a dispatcher invocation for long.
//
// Because delayed jobs only run when an external trigger arrives after
// their due time, a lost job would strand a campaign in scheduled
// forever. The Watchdog closes that gap: it periodically re-queues
// overdue scheduled campaigns whose brand still holds valid send
// credentials.
//
// Pausing is cooperative. The batch handler re-reads the persisted
// status before every batch, so Pause takes effect at the next batch
// boundary rather than mid-send.
package campaign
