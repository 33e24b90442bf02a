package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/menucast/outhook/internal/webhook"
)

// ErrEndpointNotFound is returned when an endpoint id has no row.
var ErrEndpointNotFound = errors.New("postgres: endpoint not found")

// Registry is the engine's read-only view of outhook.endpoints. Endpoint
// management (create, update, secret rotation) lives elsewhere.
type Registry struct {
	pool *pgxpool.Pool
}

func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

func (r *Registry) FindEnabledEndpoints(ctx context.Context, organizationID string) ([]webhook.Endpoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, url, secret, enabled, events
		FROM outhook.endpoints
		WHERE organization_id=$1 AND enabled`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("query endpoints: %w", err)
	}
	defer rows.Close()

	var out []webhook.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("endpoint rows: %w", err)
	}
	return out, nil
}

func (r *Registry) FindEndpoint(ctx context.Context, id string) (webhook.Endpoint, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, url, secret, enabled, events
		FROM outhook.endpoints
		WHERE id=$1`, id)
	ep, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return webhook.Endpoint{}, ErrEndpointNotFound
		}
		return webhook.Endpoint{}, fmt.Errorf("find endpoint: %w", err)
	}
	return ep, nil
}

func scanEndpoint(row pgx.Row) (webhook.Endpoint, error) {
	var (
		ep     webhook.Endpoint
		events []string
	)
	if err := row.Scan(&ep.ID, &ep.OrganizationID, &ep.URL, &ep.Secret, &ep.Enabled, &events); err != nil {
		return webhook.Endpoint{}, err
	}
	ep.Events = make([]webhook.EventType, len(events))
	for i, e := range events {
		ep.Events[i] = webhook.EventType(e)
	}
	return ep, nil
}
