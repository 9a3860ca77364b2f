package campaign

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/dripkit/pkg/pg"
)

// PGStore implements Store on postgres. Status transitions take a row
// lock so concurrent dispatcher runs serialize on the campaign row.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a postgres-backed campaign store.
func NewPGStore(pool *pgxpool.Pool) (*PGStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("campaign: pg store: pool cannot be nil")
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) GetCampaign(ctx context.Context, id string) (Campaign, error) {
	const q = `
		SELECT id, brand_id, status, subject, from_name, from_email, reply_to,
		       body_html, contact_list_ids, scheduled_at, sent_at, failure_reason
		FROM campaigns WHERE id = $1`

	var c Campaign
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&c.ID, &c.BrandID, &c.Status, &c.Subject, &c.FromName, &c.FromEmail,
		&c.ReplyTo, &c.BodyHTML, &c.ContactListIDs, &c.ScheduledAt, &c.SentAt,
		&c.FailureReason,
	)
	if pg.IsNotFound(err) {
		return Campaign{}, fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	if err != nil {
		return Campaign{}, fmt.Errorf("campaign: get %s: %w", id, err)
	}
	return c, nil
}

func (s *PGStore) TransitionStatus(ctx context.Context, id string, from []Status, to Status) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var current Status
		err := tx.QueryRow(ctx,
			`SELECT status FROM campaigns WHERE id = $1 FOR UPDATE`, id,
		).Scan(&current)
		if pg.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("campaign: transition %s: %w", id, err)
		}

		if !slices.Contains(from, current) || !CanTransition(current, to) {
			return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, to)
		}

		_, err = tx.Exec(ctx,
			`UPDATE campaigns SET status = $2, updated_at = now() WHERE id = $1`,
			id, to)
		if err != nil {
			return fmt.Errorf("campaign: transition %s: %w", id, err)
		}
		return nil
	})
}

func (s *PGStore) SetScheduledAt(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET scheduled_at = $2, updated_at = now() WHERE id = $1`,
		id, at)
	if err != nil {
		return fmt.Errorf("campaign: set scheduled_at %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	return nil
}

func (s *PGStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	if err := s.TransitionStatus(ctx, id, []Status{StatusSending}, StatusSent); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET sent_at = $2, updated_at = now() WHERE id = $1`,
		id, at)
	if err != nil {
		return fmt.Errorf("campaign: mark sent %s: %w", id, err)
	}
	return nil
}

func (s *PGStore) SetFailureReason(ctx context.Context, id string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET failure_reason = $2, updated_at = now() WHERE id = $1`,
		id, reason)
	if err != nil {
		return fmt.Errorf("campaign: set failure reason %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	return nil
}

func (s *PGStore) ListOverdueScheduled(ctx context.Context, cutoff time.Time) ([]Campaign, error) {
	const q = `
		SELECT id, brand_id, status, subject, from_name, from_email, reply_to,
		       body_html, contact_list_ids, scheduled_at, sent_at, failure_reason
		FROM campaigns
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at`

	rows, err := s.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, fmt.Errorf("campaign: list overdue: %w", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(
			&c.ID, &c.BrandID, &c.Status, &c.Subject, &c.FromName, &c.FromEmail,
			&c.ReplyTo, &c.BodyHTML, &c.ContactListIDs, &c.ScheduledAt, &c.SentAt,
			&c.FailureReason,
		); err != nil {
			return nil, fmt.Errorf("campaign: list overdue: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign: list overdue: %w", err)
	}
	return out, nil
}

func (s *PGStore) CountRecipients(ctx context.Context, listIDs []string) (int, error) {
	const q = `
		SELECT COUNT(DISTINCT c.id)
		FROM contacts c
		JOIN contact_list_members m ON m.contact_id = c.id
		WHERE m.list_id = ANY($1) AND c.status = 'active'`

	var n int
	if err := s.pool.QueryRow(ctx, q, listIDs).Scan(&n); err != nil {
		return 0, fmt.Errorf("campaign: count recipients: %w", err)
	}
	return n, nil
}

func (s *PGStore) ListRecipients(ctx context.Context, listIDs []string, offset, limit int) ([]Recipient, error) {
	const q = `
		SELECT DISTINCT c.id, c.email
		FROM contacts c
		JOIN contact_list_members m ON m.contact_id = c.id
		WHERE m.list_id = ANY($1) AND c.status = 'active'
		ORDER BY c.id
		OFFSET $2 LIMIT $3`

	rows, err := s.pool.Query(ctx, q, listIDs, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign: list recipients: %w", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.ContactID, &r.Email); err != nil {
			return nil, fmt.Errorf("campaign: list recipients: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign: list recipients: %w", err)
	}
	return out, nil
}

func (s *PGStore) LogSend(ctx context.Context, rec SendRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO campaign_sends (campaign_id, contact_id, email, message_id, sent_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.CampaignID, rec.ContactID, rec.Email, rec.MessageID, rec.SentAt)
	if err != nil {
		return fmt.Errorf("campaign: log send: %w", err)
	}
	return nil
}
