package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const instanceColumns = `id, organization_id, slug, endpoint_hint, auth_secret_ref, status, created_at`

// PostgresRegistry implements Registry against the public.instances table
// using a shared pgxpool.Pool, following the column-list-constant and
// scan-helper style used throughout the teacher's store layer.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a PostgresRegistry backed by the given pool.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

var _ Registry = (*PostgresRegistry)(nil)

func scanInstance(row pgx.Row) (Instance, error) {
	var i Instance
	var status string
	err := row.Scan(&i.ID, &i.OrganizationID, &i.Slug, &i.EndpointHint, &i.AuthSecretRef, &status, &i.CreatedAt)
	i.Status = Status(status)
	return i, err
}

func scanInstances(rows pgx.Rows) ([]Instance, error) {
	defer rows.Close()
	var items []Instance
	for rows.Next() {
		var i Instance
		var status string
		if err := rows.Scan(&i.ID, &i.OrganizationID, &i.Slug, &i.EndpointHint, &i.AuthSecretRef, &status, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning instance row: %w", err)
		}
		i.Status = Status(status)
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating instance rows: %w", err)
	}
	return items, nil
}

// GetInstance returns the descriptor for instanceID, or ErrNotFound if it
// doesn't exist or is marked deleted.
func (r *PostgresRegistry) GetInstance(ctx context.Context, instanceID uuid.UUID) (Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM public.instances WHERE id = $1 AND status != 'deleted'`
	row := r.pool.QueryRow(ctx, query, instanceID)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Instance{}, ErrNotFound
		}
		return Instance{}, fmt.Errorf("getting instance: %w", err)
	}
	return inst, nil
}

// ListInstancesByTenant returns all non-deleted instances owned by organizationID.
func (r *PostgresRegistry) ListInstancesByTenant(ctx context.Context, organizationID uuid.UUID) ([]Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM public.instances WHERE organization_id = $1 AND status != 'deleted' ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("listing instances by tenant: %w", err)
	}
	return scanInstances(rows)
}

// ListAllLiveInstances returns every non-deleted instance across all tenants.
func (r *PostgresRegistry) ListAllLiveInstances(ctx context.Context) ([]Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM public.instances WHERE status != 'deleted' ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing live instances: %w", err)
	}
	return scanInstances(rows)
}
