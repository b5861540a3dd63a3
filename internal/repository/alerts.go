package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"alertd/internal/models"
	pkgerrors "alertd/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const alertColumnList = `id, resource, event, environment, severity, correlate, status, service,
	"group", value, text, tags, attributes, origin, type, create_time, timeout, raw_data,
	customer, duplicate_count, repeat, previous_severity, trend_indication, receive_time,
	last_receive_id, last_receive_time, update_time, history`

type AlertRepository struct {
	db *Database
}

func NewAlertRepository(db *Database) *AlertRepository {
	return &AlertRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var a models.Alert
	var attrs, history []byte
	var lastReceiveID *uuid.UUID
	err := row.Scan(&a.ID, &a.Resource, &a.Event, &a.Environment, &a.Severity, &a.Correlate,
		&a.Status, &a.Service, &a.Group, &a.Value, &a.Text, &a.Tags, &attrs, &a.Origin,
		&a.Type, &a.CreateTime, &a.Timeout, &a.RawData, &a.Customer, &a.DuplicateCount,
		&a.Repeat, &a.PreviousSeverity, &a.TrendIndication, &a.ReceiveTime, &lastReceiveID,
		&a.LastReceiveTime, &a.UpdateTime, &history)
	if err != nil {
		return nil, err
	}
	if lastReceiveID != nil {
		a.LastReceiveID = *lastReceiveID
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &a.Attributes); err != nil {
			return nil, fmt.Errorf("decoding alert attributes: %w", err)
		}
	}
	if a.Attributes == nil {
		a.Attributes = map[string]interface{}{}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &a.History); err != nil {
			return nil, fmt.Errorf("decoding alert history: %w", err)
		}
	}
	return &a, nil
}

func (r *AlertRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.db.Pool.Begin(ctx)
}

// FindIdentityForUpdate locks and returns the stored alert sharing the
// incident identity (environment, resource, event-or-correlate,
// customer), or nil when the incident is new.
func (r *AlertRepository) FindIdentityForUpdate(ctx context.Context, tx pgx.Tx, environment, resource, event string, customer *string) (*models.Alert, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+alertColumnList+`
		FROM alerts
		WHERE environment=$1 AND resource=$2
		  AND (event=$3 OR $3=ANY(correlate))
		  AND customer IS NOT DISTINCT FROM $4
		ORDER BY last_receive_time DESC
		LIMIT 1
		FOR UPDATE
	`, environment, resource, event, customer)
	alert, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return alert, err
}

// GetForUpdate locks a single alert row inside tx.
func (r *AlertRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Alert, error) {
	row := tx.QueryRow(ctx, `SELECT `+alertColumnList+` FROM alerts WHERE id=$1 FOR UPDATE`, id)
	alert, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	return alert, err
}

func (r *AlertRepository) InsertTx(ctx context.Context, tx pgx.Tx, a *models.Alert) error {
	attrs, err := json.Marshal(a.Attributes)
	if err != nil {
		return err
	}
	history, err := json.Marshal(a.History)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO alerts (`+alertColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
		        $21,$22,$23,$24,$25,$26,$27,$28)
	`, a.ID, a.Resource, a.Event, a.Environment, a.Severity, a.Correlate, a.Status, a.Service,
		a.Group, a.Value, a.Text, a.Tags, attrs, a.Origin, a.Type, a.CreateTime, a.Timeout,
		a.RawData, a.Customer, a.DuplicateCount, a.Repeat, a.PreviousSeverity,
		a.TrendIndication, a.ReceiveTime, a.LastReceiveID, a.LastReceiveTime, a.UpdateTime,
		history)
	return err
}

// UpdateTx writes every mutable column of the alert.
func (r *AlertRepository) UpdateTx(ctx context.Context, tx pgx.Tx, a *models.Alert) error {
	attrs, err := json.Marshal(a.Attributes)
	if err != nil {
		return err
	}
	history, err := json.Marshal(a.History)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE alerts
		SET resource=$2, event=$3, severity=$4, correlate=$5, status=$6, service=$7,
		    "group"=$8, value=$9, text=$10, tags=$11, attributes=$12, origin=$13, type=$14,
		    timeout=$15, raw_data=$16, duplicate_count=$17, repeat=$18, previous_severity=$19,
		    trend_indication=$20, receive_time=$21, last_receive_id=$22, last_receive_time=$23,
		    update_time=$24, history=$25
		WHERE id=$1
	`, a.ID, a.Resource, a.Event, a.Severity, a.Correlate, a.Status, a.Service, a.Group,
		a.Value, a.Text, a.Tags, attrs, a.Origin, a.Type, a.Timeout, a.RawData,
		a.DuplicateCount, a.Repeat, a.PreviousSeverity, a.TrendIndication, a.ReceiveTime,
		a.LastReceiveID, a.LastReceiveTime, a.UpdateTime, history)
	return err
}

func (r *AlertRepository) Get(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+alertColumnList+` FROM alerts WHERE id=$1`, id)
	alert, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	return alert, err
}

func (r *AlertRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM alerts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

// List returns the page of alerts matching the compiled query plus the
// total match count.
func (r *AlertRepository) List(ctx context.Context, q *AlertQuery) ([]models.Alert, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE `+q.Where, q.Args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := fmt.Sprintf(`SELECT %s FROM alerts WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		alertColumnList, q.Where, q.OrderBy, q.PageSize, (q.Page-1)*q.PageSize)
	rows, err := r.db.Pool.Query(ctx, sql, q.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, total, rows.Err()
}

// Counts aggregates matching alerts by severity and by status.
func (r *AlertRepository) Counts(ctx context.Context, q *AlertQuery) (map[string]int, map[string]int, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT severity, status, COUNT(*) FROM alerts
		WHERE `+q.Where+`
		GROUP BY severity, status
	`, q.Args...)
	if err != nil {
		return nil, nil, 0, err
	}
	defer rows.Close()

	severityCounts := map[string]int{}
	statusCounts := map[string]int{}
	total := 0
	for rows.Next() {
		var severity, status string
		var count int
		if err := rows.Scan(&severity, &status, &count); err != nil {
			return nil, nil, 0, err
		}
		severityCounts[severity] += count
		statusCounts[status] += count
		total += count
	}
	return severityCounts, statusCounts, total, rows.Err()
}

// TopEntry is one row of a top-10 report.
type TopEntry struct {
	Event          string              `json:"event"`
	Count          int                 `json:"count"`
	DuplicateCount int                 `json:"duplicateCount"`
	Environments   []string            `json:"environments"`
	Services       []string            `json:"services"`
	Resources      []map[string]string `json:"resources"`
}

// Top10Count ranks events by number of alerts.
func (r *AlertRepository) Top10Count(ctx context.Context, q *AlertQuery) ([]TopEntry, error) {
	return r.top10(ctx, q, `COUNT(*)`)
}

// Top10Flapping ranks events by severity changes recorded in history.
func (r *AlertRepository) Top10Flapping(ctx context.Context, q *AlertQuery) ([]TopEntry, error) {
	return r.top10(ctx, q, `(
		SELECT COUNT(*) FROM alerts a2, jsonb_array_elements(a2.history) h
		WHERE a2.event=alerts.event AND h->>'type'='severity'
	)`)
}

// Top10Standing ranks events by total standing time.
func (r *AlertRepository) Top10Standing(ctx context.Context, q *AlertQuery) ([]TopEntry, error) {
	return r.top10(ctx, q, `EXTRACT(EPOCH FROM SUM(last_receive_time - create_time))::bigint`)
}

func (r *AlertRepository) top10(ctx context.Context, q *AlertQuery, rank string) ([]TopEntry, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT event, COUNT(*), SUM(duplicate_count),
		       array_agg(DISTINCT environment),
		       array_agg(DISTINCT svc) FILTER (WHERE svc IS NOT NULL),
		       json_agg(json_build_object('id', id, 'resource', resource))
		FROM alerts
		LEFT JOIN LATERAL unnest(service) svc ON true
		WHERE `+q.Where+`
		GROUP BY event
		ORDER BY `+rank+` DESC
		LIMIT 10
	`, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TopEntry
	for rows.Next() {
		var e TopEntry
		var resources []byte
		if err := rows.Scan(&e.Event, &e.Count, &e.DuplicateCount, &e.Environments, &e.Services, &resources); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(resources, &e.Resources); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// History lists flattened history entries of matching alerts, newest
// first.
func (r *AlertRepository) History(ctx context.Context, q *AlertQuery) ([]models.AlertHistoryItem, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, resource, environment, service, "group", tags, origin, customer, type,
		       h->>'event', h->>'severity', h->>'status', h->>'value', h->>'text',
		       h->>'type', h->>'updateTime', h->>'user'
		FROM alerts, jsonb_array_elements(history) h
		WHERE `+q.Where+`
		ORDER BY h->>'updateTime' DESC
		LIMIT `+fmt.Sprintf("%d OFFSET %d", q.PageSize, (q.Page-1)*q.PageSize), q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AlertHistoryItem
	for rows.Next() {
		var item models.AlertHistoryItem
		var event, severity, status, value, text, changeType, updateTime, user *string
		if err := rows.Scan(&item.ID, &item.Resource, &item.Environment, &item.Service,
			&item.Group, &item.Tags, &item.Origin, &item.Customer, &item.Type,
			&event, &severity, &status, &value, &text, &changeType, &updateTime, &user); err != nil {
			return nil, err
		}
		item.Event = deref(event)
		item.Severity = deref(severity)
		item.Status = deref(status)
		item.Value = deref(value)
		item.Text = deref(text)
		item.User = deref(user)
		if changeType != nil {
			item.Type = *changeType
		}
		if updateTime != nil {
			if t, err := time.Parse(time.RFC3339Nano, *updateTime); err == nil {
				item.UpdateTime = t
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *AlertRepository) HistoryCount(ctx context.Context, q *AlertQuery) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM alerts, jsonb_array_elements(history) h WHERE `+q.Where,
		q.Args...).Scan(&count)
	return count, err
}

// FlappingCount counts severity changes for the incident identity
// within the window.
func (r *AlertRepository) FlappingCount(ctx context.Context, environment, resource, event string, customer *string, window time.Duration) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM alerts, jsonb_array_elements(history) h
		WHERE environment=$1 AND resource=$2
		  AND h->>'event'=$3 AND h->>'type'='severity'
		  AND (h->>'updateTime')::timestamptz > $4
		  AND customer IS NOT DISTINCT FROM $5
	`, environment, resource, event, time.Now().Add(-window), customer).Scan(&count)
	return count, err
}

// GroupCount is a grouped aggregate row.
type GroupCount struct {
	Environment string `json:"environment"`
	Group       string `json:"group,omitempty"`
	Count       int    `json:"count"`
}

func (r *AlertRepository) Environments(ctx context.Context, q *AlertQuery) ([]GroupCount, error) {
	return r.grouped(ctx, q, `SELECT environment, '', COUNT(*) FROM alerts WHERE `+q.Where+` GROUP BY environment`)
}

func (r *AlertRepository) Services(ctx context.Context, q *AlertQuery) ([]GroupCount, error) {
	return r.grouped(ctx, q, `SELECT environment, svc, COUNT(*) FROM alerts, unnest(service) svc WHERE `+q.Where+` GROUP BY environment, svc`)
}

func (r *AlertRepository) Groups(ctx context.Context, q *AlertQuery) ([]GroupCount, error) {
	return r.grouped(ctx, q, `SELECT environment, "group", COUNT(*) FROM alerts WHERE `+q.Where+` GROUP BY environment, "group"`)
}

func (r *AlertRepository) TagCounts(ctx context.Context, q *AlertQuery) ([]GroupCount, error) {
	return r.grouped(ctx, q, `SELECT environment, tag, COUNT(*) FROM alerts, unnest(tags) tag WHERE `+q.Where+` GROUP BY environment, tag`)
}

func (r *AlertRepository) grouped(ctx context.Context, q *AlertQuery, sql string) ([]GroupCount, error) {
	rows, err := r.db.Pool.Query(ctx, sql, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GroupCount
	for rows.Next() {
		var g GroupCount
		if err := rows.Scan(&g.Environment, &g.Group, &g.Count); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListByStatus returns alerts currently in any of the given statuses.
func (r *AlertRepository) ListByStatus(ctx context.Context, statuses ...string) ([]models.Alert, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+alertColumnList+` FROM alerts WHERE status=ANY($1)`, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// ListExpiredCandidates returns non-expired alerts whose effective
// timeout has elapsed.
func (r *AlertRepository) ListExpiredCandidates(ctx context.Context, defaultTimeout int) ([]models.Alert, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+alertColumnList+`
		FROM alerts
		WHERE status NOT IN ($1, $2)
		  AND COALESCE(NULLIF(timeout, 0), $3) != 0
		  AND (last_receive_time + make_interval(secs => COALESCE(NULLIF(timeout, 0), $3))) < NOW()
	`, models.StatusExpired, models.StatusClosed, defaultTimeout)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// ListStaleOpen returns open alerts in the environment whose last
// receive time is older than the cutoff.
func (r *AlertRepository) ListStaleOpen(ctx context.Context, environment string, cutoff time.Time, customer *string) ([]models.Alert, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+alertColumnList+`
		FROM alerts
		WHERE status=$1 AND environment=$2 AND last_receive_time < $3
		  AND ($4::text IS NULL OR customer=$4)
	`, models.StatusOpen, environment, cutoff, customer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// DeleteClosedExpired removes closed and expired alerts not touched
// since the threshold. Returns the deleted ids.
func (r *AlertRepository) DeleteClosedExpired(ctx context.Context, threshold time.Time) ([]uuid.UUID, error) {
	return r.deleteReturning(ctx, `
		DELETE FROM alerts
		WHERE status IN ($1, $2) AND last_receive_time < $3
		RETURNING id
	`, models.StatusClosed, models.StatusExpired, threshold)
}

// DeleteInformational removes informational alerts not touched since
// the threshold.
func (r *AlertRepository) DeleteInformational(ctx context.Context, threshold time.Time) ([]uuid.UUID, error) {
	return r.deleteReturning(ctx, `
		DELETE FROM alerts
		WHERE severity=$1 AND last_receive_time < $2
		RETURNING id
	`, models.DefaultInformSeverity, threshold)
}

func (r *AlertRepository) deleteReturning(ctx context.Context, sql string, args ...interface{}) ([]uuid.UUID, error) {
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IDsMatching returns the ids of alerts matching a compiled query,
// used by the bulk endpoints.
func (r *AlertRepository) IDsMatching(ctx context.Context, q *AlertQuery) ([]uuid.UUID, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id FROM alerts WHERE `+q.Where, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListAll streams every alert, used by the export endpoint.
func (r *AlertRepository) ListAll(ctx context.Context) ([]models.Alert, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+alertColumnList+` FROM alerts ORDER BY last_receive_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
