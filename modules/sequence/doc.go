// Package sequence steps contacts through timed drip sequences.
//
// The Poller watches the contact lists referenced by active sequences
// and enrolls newly added, eligible contacts. Each enrollment walks its
// sequence's steps strictly in order index, one delayed queue job per
// step; the StepHandler delivers a step's email and schedules the next
// one, or completes the enrollment after the last step.
//
// Eligibility is checked twice: once at enrollment and again when each
// step executes, because a contact can unsubscribe during a step's
// delay window. An ineligible contact moves the enrollment to
// unsubscribed without sending. Completed and unsubscribed are
// terminal.
//
// Polling uses a per-list cursor that advances to now on every cycle,
// found contacts or not, so the scan window stays bounded.
package sequence
