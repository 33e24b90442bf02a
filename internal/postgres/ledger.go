// Package postgres implements the delivery ledger and the endpoint registry
// reads over a pgx connection pool. All ledger operations are single-row.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/menucast/outhook/internal/webhook"
)

// Ledger persists webhook.Delivery rows in outhook.deliveries.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

const deliveryColumns = `
	id, organization_id, endpoint_id, event_id, event_type, payload,
	status, attempts, max_attempts, http_status, response_body, error_message,
	next_retry_at, completed_at, created_at, updated_at`

func (l *Ledger) CreateDelivery(ctx context.Context, d *webhook.Delivery) error {
	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO outhook.deliveries(
			id, organization_id, endpoint_id, event_id, event_type, payload,
			status, attempts, max_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11)`,
		d.ID, d.OrganizationID, d.EndpointID, d.EventID, string(d.EventType), string(payload),
		string(d.Status), d.Attempts, d.MaxAttempts, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (l *Ledger) UpdateDelivery(ctx context.Context, d *webhook.Delivery) error {
	ct, err := l.pool.Exec(ctx, `
		UPDATE outhook.deliveries
		SET status=$2, attempts=$3, http_status=NULLIF($4, 0),
		    response_body=NULLIF($5, ''), error_message=NULLIF($6, ''),
		    next_retry_at=$7, completed_at=$8, updated_at=now()
		WHERE id=$1`,
		d.ID, string(d.Status), d.Attempts, d.HTTPStatus,
		d.ResponseBody, d.ErrorMessage, d.NextRetryAt, d.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return webhook.ErrDeliveryNotFound
	}
	return nil
}

func (l *Ledger) FindDelivery(ctx context.Context, id string) (*webhook.Delivery, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT `+deliveryColumns+`
		FROM outhook.deliveries
		WHERE id=$1`, id)
	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, webhook.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("find delivery: %w", err)
	}
	return d, nil
}

// ClaimDue atomically claims deliveries whose retry is due, clearing
// next_retry_at so concurrent sweepers cannot claim the same row twice.
func (l *Ledger) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*webhook.Delivery, error) {
	rows, err := l.pool.Query(ctx, `
		UPDATE outhook.deliveries
		SET next_retry_at=NULL, updated_at=now()
		WHERE id IN (
			SELECT id FROM outhook.deliveries
			WHERE status='retrying' AND next_retry_at <= $1
			ORDER BY next_retry_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED)
		RETURNING `+deliveryColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due: %w", err)
	}
	defer rows.Close()

	var out []*webhook.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("claim due scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due rows: %w", err)
	}
	return out, nil
}

// ListByEvent returns the deliveries fanned out for one event, oldest first.
// Used by the operator CLI.
func (l *Ledger) ListByEvent(ctx context.Context, eventID string, limit int) ([]*webhook.Delivery, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM outhook.deliveries
		WHERE event_id=$1
		ORDER BY created_at ASC
		LIMIT $2`, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*webhook.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("list deliveries scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list deliveries rows: %w", err)
	}
	return out, nil
}

func scanDelivery(row pgx.Row) (*webhook.Delivery, error) {
	var (
		d          webhook.Delivery
		eventType  string
		status     string
		payload    []byte
		httpStatus sql.NullInt32
		respBody   sql.NullString
		errMsg     sql.NullString
		nextRetry  sql.NullTime
		completed  sql.NullTime
	)
	if err := row.Scan(
		&d.ID, &d.OrganizationID, &d.EndpointID, &d.EventID, &eventType, &payload,
		&status, &d.Attempts, &d.MaxAttempts, &httpStatus, &respBody, &errMsg,
		&nextRetry, &completed, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.EventType = webhook.EventType(eventType)
	d.Status = webhook.Status(status)
	if err := json.Unmarshal(payload, &d.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if httpStatus.Valid {
		d.HTTPStatus = int(httpStatus.Int32)
	}
	if respBody.Valid {
		d.ResponseBody = respBody.String
	}
	if errMsg.Valid {
		d.ErrorMessage = errMsg.String
	}
	if nextRetry.Valid {
		t := nextRetry.Time
		d.NextRetryAt = &t
	}
	if completed.Valid {
		t := completed.Time
		d.CompletedAt = &t
	}
	return &d, nil
}
