package campaign

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory for tests and local
// development.
type MemoryStore struct {
	mu         sync.Mutex
	campaigns  map[string]Campaign
	recipients map[string][]Recipient // listID → members, insertion order
	sends      []SendRecord
}

// NewMemoryStore creates an empty in-memory campaign store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:  make(map[string]Campaign),
		recipients: make(map[string][]Recipient),
	}
}

// PutCampaign inserts or replaces a campaign, for test setup.
func (s *MemoryStore) PutCampaign(c Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c
}

// PutRecipients sets a list's members, for test setup.
func (s *MemoryStore) PutRecipients(listID string, recipients ...Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[listID] = recipients
}

// Sends returns a copy of the send log.
func (s *MemoryStore) Sends() []SendRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sends)
}

func (s *MemoryStore) GetCampaign(ctx context.Context, id string) (Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return Campaign{}, fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	return c, nil
}

func (s *MemoryStore) TransitionStatus(ctx context.Context, id string, from []Status, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	if !slices.Contains(from, c.Status) || !CanTransition(c.Status, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, c.Status, to)
	}
	c.Status = to
	s.campaigns[id] = c
	return nil
}

func (s *MemoryStore) SetScheduledAt(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	c.ScheduledAt = &at
	s.campaigns[id] = c
	return nil
}

func (s *MemoryStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	if !CanTransition(c.Status, StatusSent) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, c.Status, StatusSent)
	}
	c.Status = StatusSent
	c.SentAt = &at
	s.campaigns[id] = c
	return nil
}

func (s *MemoryStore) SetFailureReason(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	c.FailureReason = reason
	s.campaigns[id] = c
	return nil
}

func (s *MemoryStore) ListOverdueScheduled(ctx context.Context, cutoff time.Time) ([]Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var overdue []Campaign
	for _, c := range s.campaigns {
		if c.Status == StatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(cutoff) {
			overdue = append(overdue, c)
		}
	}
	slices.SortFunc(overdue, func(a, b Campaign) int {
		return a.ScheduledAt.Compare(*b.ScheduledAt)
	})
	return overdue, nil
}

func (s *MemoryStore) CountRecipients(ctx context.Context, listIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.distinctLocked(listIDs)), nil
}

func (s *MemoryStore) ListRecipients(ctx context.Context, listIDs []string, offset, limit int) ([]Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.distinctLocked(listIDs)
	if offset >= len(all) {
		return nil, nil
	}
	end := min(offset+limit, len(all))
	return slices.Clone(all[offset:end]), nil
}

func (s *MemoryStore) LogSend(ctx context.Context, rec SendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, rec)
	return nil
}

// distinctLocked flattens list memberships into a stable, de-duplicated
// recipient slice. Must be called with the mutex held.
func (s *MemoryStore) distinctLocked(listIDs []string) []Recipient {
	seen := make(map[string]struct{})
	var out []Recipient
	for _, listID := range listIDs {
		for _, r := range s.recipients[listID] {
			if _, dup := seen[r.ContactID]; dup {
				continue
			}
			seen[r.ContactID] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}
