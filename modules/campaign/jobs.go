package campaign

import (
	"strconv"

	"github.com/dmitrymomot/dripkit/pkg/delayq"
)

// schedulePayload rides the campaign-scheduler queue and fires when a
// scheduled campaign's due time arrives.
type schedulePayload struct {
	CampaignID string `json:"campaign_id"`
}

// sendPayload rides the campaign-sends queue. Offset pages through the
// recipient snapshot; Total is the recipient count captured when the
// campaign was queued.
type sendPayload struct {
	CampaignID string `json:"campaign_id"`
	Offset     int    `json:"offset"`
	Total      int    `json:"total"`
}

// scheduleJobID is stable per campaign so re-scheduling upserts the
// pending due-time job instead of duplicating it.
func scheduleJobID(campaignID string) string {
	return delayq.DeterministicID("campaign-schedule", campaignID)
}

// sendJobID is stable per campaign and batch offset so double-queueing
// (a second SendNow click, a watchdog pass racing the scheduler job)
// cannot double-send a batch that is still queued.
func sendJobID(campaignID string, offset int) string {
	return delayq.DeterministicID("campaign-send", campaignID, strconv.Itoa(offset))
}
