package sequence

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory for tests and local
// development.
type MemoryStore struct {
	mu          sync.Mutex
	sequences   map[string]Sequence
	steps       map[string][]Step // sequenceID → steps
	enrollments map[string]Enrollment
	byPair      map[string]string // sequenceID+"/"+contactID → enrollment ID
	contacts    map[string]Contact
	listMembers map[string][]listMember
	cursors     map[string]time.Time
	sends       []StepSendRecord
}

type listMember struct {
	contactID string
	addedAt   time.Time
}

// NewMemoryStore creates an empty in-memory sequence store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sequences:   make(map[string]Sequence),
		steps:       make(map[string][]Step),
		enrollments: make(map[string]Enrollment),
		byPair:      make(map[string]string),
		contacts:    make(map[string]Contact),
		listMembers: make(map[string][]listMember),
		cursors:     make(map[string]time.Time),
	}
}

// PutSequence inserts or replaces a sequence and its steps, for test setup.
func (s *MemoryStore) PutSequence(seq Sequence, steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[seq.ID] = seq
	sorted := slices.Clone(steps)
	slices.SortFunc(sorted, func(a, b Step) int { return a.OrderIndex - b.OrderIndex })
	s.steps[seq.ID] = sorted
}

// PutContact inserts or replaces a contact, for test setup.
func (s *MemoryStore) PutContact(c Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = c
}

// AddToList records a contact's membership in a list at the given time.
func (s *MemoryStore) AddToList(listID, contactID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listMembers[listID] = append(s.listMembers[listID], listMember{contactID: contactID, addedAt: at})
}

// StepSends returns a copy of the step send log.
func (s *MemoryStore) StepSends() []StepSendRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sends)
}

// EnrollmentByPair looks up an enrollment by (sequence, contact), for
// test assertions.
func (s *MemoryStore) EnrollmentByPair(sequenceID, contactID string) (Enrollment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPair[sequenceID+"/"+contactID]
	if !ok {
		return Enrollment{}, false
	}
	return s.enrollments[id], true
}

func (s *MemoryStore) GetSequence(ctx context.Context, id string) (Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[id]
	if !ok {
		return Sequence{}, fmt.Errorf("%w: %s", ErrSequenceNotFound, id)
	}
	return seq, nil
}

func (s *MemoryStore) ListSteps(ctx context.Context, sequenceID string) ([]Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.steps[sequenceID]), nil
}

func (s *MemoryStore) ListTriggerListIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	var out []string
	for _, seq := range s.sequences {
		if seq.Status != SequenceActive || seq.TriggerType != TriggerList {
			continue
		}
		for _, listID := range seq.TriggerListIDs {
			if _, dup := seen[listID]; dup {
				continue
			}
			seen[listID] = struct{}{}
			out = append(out, listID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *MemoryStore) ListSequencesByTriggerList(ctx context.Context, listID string) ([]Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Sequence
	for _, seq := range s.sequences {
		if seq.Status == SequenceActive && seq.TriggerType == TriggerList &&
			slices.Contains(seq.TriggerListIDs, listID) {
			out = append(out, seq)
		}
	}
	slices.SortFunc(out, func(a, b Sequence) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) GetEnrollment(ctx context.Context, id string) (Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[id]
	if !ok {
		return Enrollment{}, fmt.Errorf("%w: %s", ErrEnrollmentNotFound, id)
	}
	return e, nil
}

func (s *MemoryStore) CreateEnrollment(ctx context.Context, e Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := e.SequenceID + "/" + e.ContactID
	if _, exists := s.byPair[key]; exists {
		return fmt.Errorf("%w: sequence %s contact %s", ErrEnrollmentExists, e.SequenceID, e.ContactID)
	}
	s.byPair[key] = e.ID
	s.enrollments[e.ID] = e
	return nil
}

func (s *MemoryStore) AdvanceEnrollment(ctx context.Context, id string, step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEnrollmentNotFound, id)
	}
	if e.Status != EnrollmentActive {
		return fmt.Errorf("%w: %s is %s", ErrEnrollmentNotActive, id, e.Status)
	}
	e.CurrentStep = step
	s.enrollments[id] = e
	return nil
}

func (s *MemoryStore) CompleteEnrollment(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEnrollmentNotFound, id)
	}
	if e.Status != EnrollmentActive {
		return fmt.Errorf("%w: %s is %s", ErrEnrollmentNotActive, id, e.Status)
	}
	e.Status = EnrollmentCompleted
	e.CompletedAt = &at
	s.enrollments[id] = e
	return nil
}

func (s *MemoryStore) UnsubscribeEnrollment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEnrollmentNotFound, id)
	}
	if e.Status != EnrollmentActive {
		return fmt.Errorf("%w: %s is %s", ErrEnrollmentNotActive, id, e.Status)
	}
	e.Status = EnrollmentUnsubscribed
	s.enrollments[id] = e
	return nil
}

func (s *MemoryStore) GetContact(ctx context.Context, id string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, fmt.Errorf("%w: %s", ErrContactNotFound, id)
	}
	return c, nil
}

func (s *MemoryStore) ListNewListContacts(ctx context.Context, listID string, since, until time.Time) ([]Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Contact
	for _, m := range s.listMembers[listID] {
		if !m.addedAt.After(since) || m.addedAt.After(until) {
			continue
		}
		c, ok := s.contacts[m.contactID]
		if !ok || !c.Eligible() {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) GetListCursor(ctx context.Context, listID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.cursors[listID]
	return at, ok, nil
}

func (s *MemoryStore) SetListCursor(ctx context.Context, listID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[listID] = at
	return nil
}

func (s *MemoryStore) LogStepSend(ctx context.Context, rec StepSendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, rec)
	return nil
}
