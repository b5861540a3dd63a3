package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"alertd/internal/models"
	pkgerrors "alertd/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const escalationColumnList = `id, environment, time, resource, event, "group", service, tags,
	excluded_tags, triggers, days, start_time, end_time, active, customer, "user", create_time`

type EscalationRuleRepository struct {
	db *Database
}

func NewEscalationRuleRepository(db *Database) *EscalationRuleRepository {
	return &EscalationRuleRepository{db: db}
}

func scanEscalationRule(row rowScanner) (*models.EscalationRule, error) {
	var e models.EscalationRule
	var tags, excludedTags, triggers []byte
	err := row.Scan(&e.ID, &e.Environment, &e.Time, &e.Resource, &e.Event, &e.Group,
		&e.Service, &tags, &excludedTags, &triggers, &e.Days, &e.StartTime, &e.EndTime,
		&e.Active, &e.Customer, &e.User, &e.CreateTime)
	if err != nil {
		return nil, err
	}
	for _, pair := range []struct {
		raw []byte
		dst interface{}
	}{{tags, &e.Tags}, {excludedTags, &e.ExcludedTags}, {triggers, &e.Triggers}} {
		if len(pair.raw) > 0 {
			if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
				return nil, fmt.Errorf("decoding escalation rule: %w", err)
			}
		}
	}
	return &e, nil
}

func (r *EscalationRuleRepository) Create(ctx context.Context, e *models.EscalationRule) error {
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return err
	}
	excludedTags, err := json.Marshal(e.ExcludedTags)
	if err != nil {
		return err
	}
	triggers, err := json.Marshal(e.Triggers)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO escalation_rules (`+escalationColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, e.ID, e.Environment, e.Time, e.Resource, e.Event, e.Group, e.Service, tags,
		excludedTags, triggers, e.Days, e.StartTime, e.EndTime, e.Active, e.Customer,
		e.User, e.CreateTime)
	return err
}

func (r *EscalationRuleRepository) Get(ctx context.Context, id uuid.UUID) (*models.EscalationRule, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+escalationColumnList+` FROM escalation_rules WHERE id=$1`, id)
	e, err := scanEscalationRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	return e, err
}

func (r *EscalationRuleRepository) List(ctx context.Context, page, pageSize int) ([]models.EscalationRule, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+escalationColumnList+` FROM escalation_rules
		ORDER BY create_time DESC
		LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.EscalationRule
	for rows.Next() {
		e, err := scanEscalationRule(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM escalation_rules`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListActive returns every active escalation rule.
func (r *EscalationRuleRepository) ListActive(ctx context.Context) ([]models.EscalationRule, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+escalationColumnList+` FROM escalation_rules WHERE active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.EscalationRule
	for rows.Next() {
		e, err := scanEscalationRule(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

func (r *EscalationRuleRepository) Update(ctx context.Context, e *models.EscalationRule) error {
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return err
	}
	excludedTags, err := json.Marshal(e.ExcludedTags)
	if err != nil {
		return err
	}
	triggers, err := json.Marshal(e.Triggers)
	if err != nil {
		return err
	}
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE escalation_rules
		SET environment=$2, time=$3, resource=$4, event=$5, "group"=$6, service=$7, tags=$8,
		    excluded_tags=$9, triggers=$10, days=$11, start_time=$12, end_time=$13,
		    active=$14, customer=$15
		WHERE id=$1
	`, e.ID, e.Environment, e.Time, e.Resource, e.Event, e.Group, e.Service, tags,
		excludedTags, triggers, e.Days, e.StartTime, e.EndTime, e.Active, e.Customer)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (r *EscalationRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM escalation_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}
