package postgres

import (
	"context"
	"database/sql"

	"walletbridge/internal/domain"
	"walletbridge/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// DispatchRepository persists the outbound dispatch log.
type DispatchRepository struct {
	db *sqlx.DB
}

func NewDispatchRepository(db *sqlx.DB) *DispatchRepository {
	return &DispatchRepository{db: db}
}

func (r *DispatchRepository) Create(ctx context.Context, d *domain.Dispatch) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO dispatches (
			dispatch_uuid, destination_url, payload_type, code, amount, currency,
			user_ref, payload, status, attempts, idempotency_key, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING id, created_at, updated_at
	`, d.UUID, d.DestinationURL, d.PayloadType, d.Code, d.Amount, d.Currency,
		d.UserRef, d.Payload, d.Status, d.Attempts, d.IdempotencyKey,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	return errors.Wrap(err, "failed to create dispatch record")
}

// MarkSuccess records a delivered attempt, incrementing the attempt counter.
func (r *DispatchRepository) MarkSuccess(ctx context.Context, id int64, responseCode int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dispatches
		SET status = 'success', attempts = attempts + 1,
		    last_response_code = $2, last_error = NULL, updated_at = now()
		WHERE id = $1
	`, id, responseCode)
	return errors.Wrap(err, "failed to mark dispatch success")
}

// MarkFailed records a failed attempt with the response code (0 for network
// errors) and error detail.
func (r *DispatchRepository) MarkFailed(ctx context.Context, id int64, responseCode int, detail string) error {
	var code *int
	if responseCode != 0 {
		code = &responseCode
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE dispatches
		SET status = 'failed', attempts = attempts + 1,
		    last_response_code = $2, last_error = $3, updated_at = now()
		WHERE id = $1
	`, id, code, detail)
	return errors.Wrap(err, "failed to mark dispatch failure")
}

func (r *DispatchRepository) FindByUUID(ctx context.Context, id uuid.UUID) (*domain.Dispatch, error) {
	d := &domain.Dispatch{}
	err := r.db.GetContext(ctx, d,
		`SELECT * FROM dispatches WHERE dispatch_uuid = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrDispatchNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find dispatch")
	}
	return d, nil
}

// FindByIdempotencyKey returns the dispatch carrying the key, or nil when the
// key has not been seen.
func (r *DispatchRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Dispatch, error) {
	if key == "" {
		return nil, nil
	}
	d := &domain.Dispatch{}
	err := r.db.GetContext(ctx, d,
		`SELECT * FROM dispatches WHERE idempotency_key = $1`, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find dispatch by idempotency key")
	}
	return d, nil
}

// List returns dispatches newest first with an optional status filter.
func (r *DispatchRepository) List(ctx context.Context, status domain.DispatchStatus, limit, offset int) ([]*domain.Dispatch, int, error) {
	var (
		rows  []*domain.Dispatch
		total int
		err   error
	)

	if status != "" {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT * FROM dispatches
			WHERE status = $1
			ORDER BY id DESC
			LIMIT $2 OFFSET $3
		`, status, limit, offset)
		if err == nil {
			err = r.db.GetContext(ctx, &total,
				`SELECT COUNT(*) FROM dispatches WHERE status = $1`, status)
		}
	} else {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT * FROM dispatches
			ORDER BY id DESC
			LIMIT $1 OFFSET $2
		`, limit, offset)
		if err == nil {
			err = r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM dispatches`)
		}
	}

	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list dispatches")
	}
	return rows, total, nil
}
