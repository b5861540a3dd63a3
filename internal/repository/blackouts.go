package repository

import (
	"context"
	"errors"
	"time"

	"alertd/internal/models"
	pkgerrors "alertd/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const blackoutColumnList = `id, priority, environment, service, resource, event, "group", tags,
	origin, customer, start_time, end_time, duration, "user", text, create_time`

type BlackoutRepository struct {
	db *Database
}

func NewBlackoutRepository(db *Database) *BlackoutRepository {
	return &BlackoutRepository{db: db}
}

func scanBlackout(row rowScanner) (*models.Blackout, error) {
	var b models.Blackout
	err := row.Scan(&b.ID, &b.Priority, &b.Environment, &b.Service, &b.Resource, &b.Event,
		&b.Group, &b.Tags, &b.Origin, &b.Customer, &b.StartTime, &b.EndTime, &b.Duration,
		&b.User, &b.Text, &b.CreateTime)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BlackoutRepository) Create(ctx context.Context, b *models.Blackout) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO blackouts (`+blackoutColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, b.ID, b.Priority, b.Environment, b.Service, b.Resource, b.Event, b.Group, b.Tags,
		b.Origin, b.Customer, b.StartTime, b.EndTime, b.Duration, b.User, b.Text, b.CreateTime)
	return err
}

func (r *BlackoutRepository) Get(ctx context.Context, id uuid.UUID) (*models.Blackout, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+blackoutColumnList+` FROM blackouts WHERE id=$1`, id)
	b, err := scanBlackout(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	return b, err
}

func (r *BlackoutRepository) List(ctx context.Context, page, pageSize int) ([]models.Blackout, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+blackoutColumnList+` FROM blackouts
		ORDER BY start_time DESC
		LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Blackout
	for rows.Next() {
		b, err := scanBlackout(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM blackouts`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListWindowed returns blackouts whose window covers the instant, for
// the given environment.
func (r *BlackoutRepository) ListWindowed(ctx context.Context, environment string, at time.Time) ([]models.Blackout, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+blackoutColumnList+` FROM blackouts
		WHERE environment=$1 AND start_time<=$2 AND end_time>$2
	`, environment, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Blackout
	for rows.Next() {
		b, err := scanBlackout(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *b)
	}
	return list, rows.Err()
}

func (r *BlackoutRepository) Update(ctx context.Context, b *models.Blackout) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE blackouts
		SET priority=$2, environment=$3, service=$4, resource=$5, event=$6, "group"=$7,
		    tags=$8, origin=$9, customer=$10, start_time=$11, end_time=$12, duration=$13,
		    "user"=$14, text=$15
		WHERE id=$1
	`, b.ID, b.Priority, b.Environment, b.Service, b.Resource, b.Event, b.Group, b.Tags,
		b.Origin, b.Customer, b.StartTime, b.EndTime, b.Duration, b.User, b.Text)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (r *BlackoutRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM blackouts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

// DeleteExpired removes blackouts whose window closed before the
// retention threshold.
func (r *BlackoutRepository) DeleteExpired(ctx context.Context, threshold time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM blackouts WHERE end_time < $1`, threshold)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
