package repository

import (
	"context"
	"errors"

	"alertd/internal/models"
	pkgerrors "alertd/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const onCallColumnList = `id, user_ids, group_ids, start_date, end_date, repeat_type,
	repeat_days, repeat_weeks, repeat_months, start_time, end_time, customer, "user", create_time`

type OnCallRepository struct {
	db *Database
}

func NewOnCallRepository(db *Database) *OnCallRepository {
	return &OnCallRepository{db: db}
}

func scanOnCall(row rowScanner) (*models.OnCall, error) {
	var o models.OnCall
	err := row.Scan(&o.ID, &o.UserIDs, &o.GroupIDs, &o.StartDate, &o.EndDate, &o.RepeatType,
		&o.RepeatDays, &o.RepeatWeeks, &o.RepeatMonths, &o.StartTime, &o.EndTime,
		&o.Customer, &o.User, &o.CreateTime)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OnCallRepository) Create(ctx context.Context, o *models.OnCall) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO on_calls (`+onCallColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, o.ID, o.UserIDs, o.GroupIDs, o.StartDate, o.EndDate, o.RepeatType, o.RepeatDays,
		o.RepeatWeeks, o.RepeatMonths, o.StartTime, o.EndTime, o.Customer, o.User, o.CreateTime)
	return err
}

func (r *OnCallRepository) Get(ctx context.Context, id uuid.UUID) (*models.OnCall, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+onCallColumnList+` FROM on_calls WHERE id=$1`, id)
	o, err := scanOnCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	return o, err
}

func (r *OnCallRepository) List(ctx context.Context, page, pageSize int) ([]models.OnCall, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+onCallColumnList+` FROM on_calls
		ORDER BY create_time DESC
		LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.OnCall
	for rows.Next() {
		o, err := scanOnCall(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM on_calls`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListAll returns every schedule entry; the date and recurrence
// matching is evaluated by the resolver.
func (r *OnCallRepository) ListAll(ctx context.Context) ([]models.OnCall, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+onCallColumnList+` FROM on_calls`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.OnCall
	for rows.Next() {
		o, err := scanOnCall(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

func (r *OnCallRepository) Update(ctx context.Context, o *models.OnCall) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE on_calls
		SET user_ids=$2, group_ids=$3, start_date=$4, end_date=$5, repeat_type=$6,
		    repeat_days=$7, repeat_weeks=$8, repeat_months=$9, start_time=$10, end_time=$11,
		    customer=$12
		WHERE id=$1
	`, o.ID, o.UserIDs, o.GroupIDs, o.StartDate, o.EndDate, o.RepeatType, o.RepeatDays,
		o.RepeatWeeks, o.RepeatMonths, o.StartTime, o.EndTime, o.Customer)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (r *OnCallRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM on_calls WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}
