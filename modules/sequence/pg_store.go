package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/dripkit/pkg/pg"
)

// PGStore implements Store on postgres. The unique index on
// (sequence_id, contact_id) makes enrollment uniqueness hold under
// concurrent creation attempts without any advisory locking.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a postgres-backed sequence store.
func NewPGStore(pool *pgxpool.Pool) (*PGStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("sequence: pg store: pool cannot be nil")
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) GetSequence(ctx context.Context, id string) (Sequence, error) {
	const q = `
		SELECT id, brand_id, status, name, from_name, from_email, reply_to,
		       trigger_type, trigger_list_ids
		FROM sequences WHERE id = $1`

	var seq Sequence
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&seq.ID, &seq.BrandID, &seq.Status, &seq.Name, &seq.FromName,
		&seq.FromEmail, &seq.ReplyTo, &seq.TriggerType, &seq.TriggerListIDs,
	)
	if pg.IsNotFound(err) {
		return Sequence{}, fmt.Errorf("%w: %s", ErrSequenceNotFound, id)
	}
	if err != nil {
		return Sequence{}, fmt.Errorf("sequence: get %s: %w", id, err)
	}
	return seq, nil
}

func (s *PGStore) ListSteps(ctx context.Context, sequenceID string) ([]Step, error) {
	const q = `
		SELECT id, sequence_id, order_index, subject, body_html, delay_amount, delay_unit
		FROM sequence_steps
		WHERE sequence_id = $1
		ORDER BY order_index`

	rows, err := s.pool.Query(ctx, q, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("sequence: list steps: %w", err)
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		var st Step
		if err := rows.Scan(&st.ID, &st.SequenceID, &st.OrderIndex, &st.Subject,
			&st.BodyHTML, &st.DelayAmount, &st.DelayUnit); err != nil {
			return nil, fmt.Errorf("sequence: list steps: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sequence: list steps: %w", err)
	}
	return out, nil
}

func (s *PGStore) ListTriggerListIDs(ctx context.Context) ([]string, error) {
	const q = `
		SELECT DISTINCT unnest(trigger_list_ids)
		FROM sequences
		WHERE status = 'active' AND trigger_type = 'list'
		ORDER BY 1`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sequence: list trigger lists: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sequence: list trigger lists: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sequence: list trigger lists: %w", err)
	}
	return out, nil
}

func (s *PGStore) ListSequencesByTriggerList(ctx context.Context, listID string) ([]Sequence, error) {
	const q = `
		SELECT id, brand_id, status, name, from_name, from_email, reply_to,
		       trigger_type, trigger_list_ids
		FROM sequences
		WHERE status = 'active' AND trigger_type = 'list' AND $1 = ANY(trigger_list_ids)
		ORDER BY id`

	rows, err := s.pool.Query(ctx, q, listID)
	if err != nil {
		return nil, fmt.Errorf("sequence: list by trigger: %w", err)
	}
	defer rows.Close()

	var out []Sequence
	for rows.Next() {
		var seq Sequence
		if err := rows.Scan(&seq.ID, &seq.BrandID, &seq.Status, &seq.Name,
			&seq.FromName, &seq.FromEmail, &seq.ReplyTo, &seq.TriggerType,
			&seq.TriggerListIDs); err != nil {
			return nil, fmt.Errorf("sequence: list by trigger: %w", err)
		}
		out = append(out, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sequence: list by trigger: %w", err)
	}
	return out, nil
}

func (s *PGStore) GetEnrollment(ctx context.Context, id string) (Enrollment, error) {
	const q = `
		SELECT id, sequence_id, contact_id, brand_id, status, current_step,
		       enrolled_at, completed_at
		FROM sequence_enrollments WHERE id = $1`

	var e Enrollment
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&e.ID, &e.SequenceID, &e.ContactID, &e.BrandID, &e.Status,
		&e.CurrentStep, &e.EnrolledAt, &e.CompletedAt,
	)
	if pg.IsNotFound(err) {
		return Enrollment{}, fmt.Errorf("%w: %s", ErrEnrollmentNotFound, id)
	}
	if err != nil {
		return Enrollment{}, fmt.Errorf("sequence: get enrollment %s: %w", id, err)
	}
	return e, nil
}

func (s *PGStore) CreateEnrollment(ctx context.Context, e Enrollment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sequence_enrollments
			(id, sequence_id, contact_id, brand_id, status, current_step, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.SequenceID, e.ContactID, e.BrandID, e.Status, e.CurrentStep, e.EnrolledAt)
	if pg.IsUniqueViolation(err) {
		return fmt.Errorf("%w: sequence %s contact %s", ErrEnrollmentExists, e.SequenceID, e.ContactID)
	}
	if err != nil {
		return fmt.Errorf("sequence: create enrollment: %w", err)
	}
	return nil
}

func (s *PGStore) AdvanceEnrollment(ctx context.Context, id string, step int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sequence_enrollments SET current_step = $2
		WHERE id = $1 AND status = 'active'`,
		id, step)
	if err != nil {
		return fmt.Errorf("sequence: advance enrollment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.enrollmentMutationFailed(ctx, id)
	}
	return nil
}

func (s *PGStore) CompleteEnrollment(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sequence_enrollments SET status = 'completed', completed_at = $2
		WHERE id = $1 AND status = 'active'`,
		id, at)
	if err != nil {
		return fmt.Errorf("sequence: complete enrollment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.enrollmentMutationFailed(ctx, id)
	}
	return nil
}

func (s *PGStore) UnsubscribeEnrollment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sequence_enrollments SET status = 'unsubscribed'
		WHERE id = $1 AND status = 'active'`,
		id)
	if err != nil {
		return fmt.Errorf("sequence: unsubscribe enrollment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.enrollmentMutationFailed(ctx, id)
	}
	return nil
}

// enrollmentMutationFailed distinguishes a missing row from a terminal
// enrollment after a guarded update matched nothing.
func (s *PGStore) enrollmentMutationFailed(ctx context.Context, id string) error {
	var status EnrollmentStatus
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM sequence_enrollments WHERE id = $1`, id).Scan(&status)
	if pg.IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrEnrollmentNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("sequence: check enrollment %s: %w", id, err)
	}
	return fmt.Errorf("%w: %s is %s", ErrEnrollmentNotActive, id, status)
}

func (s *PGStore) GetContact(ctx context.Context, id string) (Contact, error) {
	const q = `SELECT id, email, status, created_at FROM contacts WHERE id = $1`

	var c Contact
	err := s.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.Email, &c.Status, &c.CreatedAt)
	if pg.IsNotFound(err) {
		return Contact{}, fmt.Errorf("%w: %s", ErrContactNotFound, id)
	}
	if err != nil {
		return Contact{}, fmt.Errorf("sequence: get contact %s: %w", id, err)
	}
	return c, nil
}

func (s *PGStore) ListNewListContacts(ctx context.Context, listID string, since, until time.Time) ([]Contact, error) {
	const q = `
		SELECT c.id, c.email, c.status, c.created_at
		FROM contacts c
		JOIN contact_list_members m ON m.contact_id = c.id
		WHERE m.list_id = $1 AND c.status = 'active'
		  AND m.added_at > $2 AND m.added_at <= $3
		ORDER BY m.added_at`

	rows, err := s.pool.Query(ctx, q, listID, since, until)
	if err != nil {
		return nil, fmt.Errorf("sequence: list new contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Email, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sequence: list new contacts: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sequence: list new contacts: %w", err)
	}
	return out, nil
}

func (s *PGStore) GetListCursor(ctx context.Context, listID string) (time.Time, bool, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_checked_at FROM list_cursors WHERE list_id = $1`, listID).Scan(&at)
	if pg.IsNotFound(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sequence: get cursor %s: %w", listID, err)
	}
	return at, true, nil
}

func (s *PGStore) SetListCursor(ctx context.Context, listID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO list_cursors (list_id, last_checked_at)
		VALUES ($1, $2)
		ON CONFLICT (list_id) DO UPDATE
		SET last_checked_at = GREATEST(list_cursors.last_checked_at, EXCLUDED.last_checked_at)`,
		listID, at)
	if err != nil {
		return fmt.Errorf("sequence: set cursor %s: %w", listID, err)
	}
	return nil
}

func (s *PGStore) LogStepSend(ctx context.Context, rec StepSendRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sequence_sends
			(enrollment_id, sequence_id, contact_id, step_index, email, message_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.EnrollmentID, rec.SequenceID, rec.ContactID, rec.StepIndex,
		rec.Email, rec.MessageID, rec.SentAt)
	if err != nil {
		return fmt.Errorf("sequence: log step send: %w", err)
	}
	return nil
}
