// Package delayq provides a delay-aware job queue over a key-value store,
// designed for deployments where workers are invoked periodically instead
// of running as persistent processes.
//
// Each logical queue is split into two tiers: a ready tier popped FIFO by
// arrival, and a delayed tier ordered by ready-at time. Popping first
// promotes due delayed jobs into the ready tier, then returns one job.
// The delay is a passive marker, not a scheduler clock: a job whose due
// time passes is only delivered once something calls Pop afterwards.
//
// # Implementations
//
//   - RedisQueue: production store. Ready tier is a LIST, delayed tier a
//     ZSET scored by ready-at, job bodies a HASH keyed by job ID. Promotion
//     runs as a single atomic Lua script, so a job is never observable in
//     neither tier and cannot be lost by a partial promotion.
//   - MemoryQueue: mutex-guarded in-process store for tests and local
//     development, with an injectable clock.
//
// # Promotion ordering
//
// Whether a newly-due delayed job should pop before or after jobs that
// were added ready in the meantime is a policy choice, not a guarantee:
// configure it with PromoteOldestFirst (default) or PromoteNewestFirst.
//
// # Usage
//
//	q, _ := delayq.NewRedisQueue(rdb, delayq.WithKeyPrefix("app"))
//	router, _ := delayq.NewRouter(q)
//	sends := router.Queue(delayq.QueueCampaignSends)
//
//	_, err := sends.Add(ctx, sendPayload{CampaignID: id},
//	    delayq.WithDelay(2*time.Hour),
//	    delayq.WithJobID(delayq.DeterministicID("campaign", id)),
//	)
//
// An empty queue is a normal outcome: Pop returns (nil, nil), never an
// error. Store errors are always propagated to the caller.
package delayq
