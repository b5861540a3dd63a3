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

// --- channels ---

const channelColumnList = `id, type, sender, host, platform_id, platform_partner_id, api_sid,
	api_token, customer, verify, bearer, bearer_timeout`

type ChannelRepository struct {
	db *Database
}

func NewChannelRepository(db *Database) *ChannelRepository {
	return &ChannelRepository{db: db}
}

func scanChannel(row rowScanner) (*models.NotificationChannel, error) {
	var c models.NotificationChannel
	err := row.Scan(&c.ID, &c.Type, &c.Sender, &c.Host, &c.PlatformID, &c.PlatformPartnerID,
		&c.APISid, &c.APIToken, &c.Customer, &c.Verify, &c.Bearer, &c.BearerTimeout)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ChannelRepository) Create(ctx context.Context, c *models.NotificationChannel) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO notification_channels (`+channelColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, c.ID, c.Type, c.Sender, c.Host, c.PlatformID, c.PlatformPartnerID, c.APISid,
		c.APIToken, c.Customer, c.Verify, c.Bearer, c.BearerTimeout)
	return err
}

func (r *ChannelRepository) Get(ctx context.Context, id uuid.UUID) (*models.NotificationChannel, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+channelColumnList+` FROM notification_channels WHERE id=$1`, id)
	c, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	return c, err
}

func (r *ChannelRepository) List(ctx context.Context, page, pageSize int) ([]models.NotificationChannel, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+channelColumnList+` FROM notification_channels
		ORDER BY type, sender
		LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.NotificationChannel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM notification_channels`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *ChannelRepository) Update(ctx context.Context, c *models.NotificationChannel) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE notification_channels
		SET type=$2, sender=$3, host=$4, platform_id=$5, platform_partner_id=$6, api_sid=$7,
		    api_token=$8, customer=$9, verify=$10
		WHERE id=$1
	`, c.ID, c.Type, c.Sender, c.Host, c.PlatformID, c.PlatformPartnerID, c.APISid,
		c.APIToken, c.Customer, c.Verify)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

// UpdateBearer persists a refreshed OAuth bearer token on the channel.
func (r *ChannelRepository) UpdateBearer(ctx context.Context, id uuid.UUID, bearer string, timeout time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE notification_channels SET bearer=$2, bearer_timeout=$3 WHERE id=$1
	`, id, bearer, timeout)
	return err
}

func (r *ChannelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM notification_channels WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

// --- notification rules ---

const ruleColumnList = `id, environment, channel_id, receivers, user_ids, group_ids, use_oncall,
	resource, event, "group", service, tags, excluded_tags, triggers, days, start_time,
	end_time, delay_time, active, reactivate, customer, text, "user", create_time`

type NotificationRuleRepository struct {
	db *Database
}

func NewNotificationRuleRepository(db *Database) *NotificationRuleRepository {
	return &NotificationRuleRepository{db: db}
}

func scanNotificationRule(row rowScanner) (*models.NotificationRule, error) {
	var n models.NotificationRule
	var tags, excludedTags, triggers []byte
	err := row.Scan(&n.ID, &n.Environment, &n.ChannelID, &n.Receivers, &n.UserIDs, &n.GroupIDs,
		&n.UseOnCall, &n.Resource, &n.Event, &n.Group, &n.Service, &tags, &excludedTags,
		&triggers, &n.Days, &n.StartTime, &n.EndTime, &n.DelayTime, &n.Active, &n.Reactivate,
		&n.Customer, &n.Text, &n.User, &n.CreateTime)
	if err != nil {
		return nil, err
	}
	for _, pair := range []struct {
		raw []byte
		dst interface{}
	}{{tags, &n.Tags}, {excludedTags, &n.ExcludedTags}, {triggers, &n.Triggers}} {
		if len(pair.raw) > 0 {
			if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
				return nil, fmt.Errorf("decoding notification rule: %w", err)
			}
		}
	}
	return &n, nil
}

func ruleJSONColumns(n *models.NotificationRule) (tags, excludedTags, triggers []byte, err error) {
	if tags, err = json.Marshal(n.Tags); err != nil {
		return
	}
	if excludedTags, err = json.Marshal(n.ExcludedTags); err != nil {
		return
	}
	triggers, err = json.Marshal(n.Triggers)
	return
}

func (r *NotificationRuleRepository) Create(ctx context.Context, n *models.NotificationRule) error {
	tags, excludedTags, triggers, err := ruleJSONColumns(n)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO notification_rules (`+ruleColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
	`, n.ID, n.Environment, n.ChannelID, n.Receivers, n.UserIDs, n.GroupIDs, n.UseOnCall,
		n.Resource, n.Event, n.Group, n.Service, tags, excludedTags, triggers, n.Days,
		n.StartTime, n.EndTime, n.DelayTime, n.Active, n.Reactivate, n.Customer, n.Text,
		n.User, n.CreateTime)
	return err
}

func (r *NotificationRuleRepository) Get(ctx context.Context, id uuid.UUID) (*models.NotificationRule, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+ruleColumnList+` FROM notification_rules WHERE id=$1`, id)
	n, err := scanNotificationRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	return n, err
}

func (r *NotificationRuleRepository) List(ctx context.Context, page, pageSize int) ([]models.NotificationRule, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+ruleColumnList+` FROM notification_rules
		ORDER BY create_time DESC
		LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.NotificationRule
	for rows.Next() {
		n, err := scanNotificationRule(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM notification_rules`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Candidates returns active rules for the environment; the tag,
// trigger and time-window algebra is evaluated by the caller.
func (r *NotificationRuleRepository) Candidates(ctx context.Context, environment string) ([]models.NotificationRule, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+ruleColumnList+` FROM notification_rules
		WHERE active AND environment=$1
	`, environment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.NotificationRule
	for rows.Next() {
		n, err := scanNotificationRule(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *n)
	}
	return list, rows.Err()
}

func (r *NotificationRuleRepository) Update(ctx context.Context, n *models.NotificationRule) error {
	tags, excludedTags, triggers, err := ruleJSONColumns(n)
	if err != nil {
		return err
	}
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE notification_rules
		SET environment=$2, channel_id=$3, receivers=$4, user_ids=$5, group_ids=$6,
		    use_oncall=$7, resource=$8, event=$9, "group"=$10, service=$11, tags=$12,
		    excluded_tags=$13, triggers=$14, days=$15, start_time=$16, end_time=$17,
		    delay_time=$18, active=$19, reactivate=$20, customer=$21, text=$22
		WHERE id=$1
	`, n.ID, n.Environment, n.ChannelID, n.Receivers, n.UserIDs, n.GroupIDs, n.UseOnCall,
		n.Resource, n.Event, n.Group, n.Service, tags, excludedTags, triggers, n.Days,
		n.StartTime, n.EndTime, n.DelayTime, n.Active, n.Reactivate, n.Customer, n.Text)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (r *NotificationRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM notification_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

// Reactivate flips inactive rules whose reactivate timestamp has
// passed back to active. Returns the number of rules reactivated.
func (r *NotificationRuleRepository) Reactivate(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE notification_rules
		SET active=true, reactivate=NULL
		WHERE NOT active AND reactivate IS NOT NULL AND reactivate < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- notification groups ---

type NotificationGroupRepository struct {
	db *Database
}

func NewNotificationGroupRepository(db *Database) *NotificationGroupRepository {
	return &NotificationGroupRepository{db: db}
}

const groupColumnList = `id, name, user_ids, phone_numbers, mails, text, create_time`

func scanGroup(row rowScanner) (*models.NotificationGroup, error) {
	var g models.NotificationGroup
	err := row.Scan(&g.ID, &g.Name, &g.UserIDs, &g.PhoneNumbers, &g.Mails, &g.Text, &g.CreateTime)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *NotificationGroupRepository) Create(ctx context.Context, g *models.NotificationGroup) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO notification_groups (`+groupColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, g.ID, g.Name, g.UserIDs, g.PhoneNumbers, g.Mails, g.Text, g.CreateTime)
	return err
}

func (r *NotificationGroupRepository) Get(ctx context.Context, id uuid.UUID) (*models.NotificationGroup, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+groupColumnList+` FROM notification_groups WHERE id=$1`, id)
	g, err := scanGroup(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	return g, err
}

func (r *NotificationGroupRepository) List(ctx context.Context, page, pageSize int) ([]models.NotificationGroup, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+groupColumnList+` FROM notification_groups
		ORDER BY name
		LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.NotificationGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM notification_groups`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *NotificationGroupRepository) Update(ctx context.Context, g *models.NotificationGroup) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE notification_groups
		SET name=$2, user_ids=$3, phone_numbers=$4, mails=$5, text=$6
		WHERE id=$1
	`, g.ID, g.Name, g.UserIDs, g.PhoneNumbers, g.Mails, g.Text)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (r *NotificationGroupRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM notification_groups WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

// --- delayed notifications ---

type DelayRepository struct {
	db *Database
}

func NewDelayRepository(db *Database) *DelayRepository {
	return &DelayRepository{db: db}
}

// Upsert records a pending dispatch; one row per (alert, rule).
func (r *DelayRepository) Upsert(ctx context.Context, d *models.DelayedNotification) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO notification_delays (id, alert_id, rule_id, fire_at, create_time)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (alert_id, rule_id) DO UPDATE SET fire_at=EXCLUDED.fire_at
	`, d.ID, d.AlertID, d.RuleID, d.FireAt, d.CreateTime)
	return err
}

func (r *DelayRepository) List(ctx context.Context) ([]models.DelayedNotification, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, alert_id, rule_id, fire_at, create_time FROM notification_delays
		ORDER BY fire_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.DelayedNotification
	for rows.Next() {
		var d models.DelayedNotification
		if err := rows.Scan(&d.ID, &d.AlertID, &d.RuleID, &d.FireAt, &d.CreateTime); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// PopDue atomically claims and removes entries due at the given
// instant. Claimed entries are never returned twice.
func (r *DelayRepository) PopDue(ctx context.Context, now time.Time) ([]models.DelayedNotification, error) {
	rows, err := r.db.Pool.Query(ctx, `
		DELETE FROM notification_delays
		WHERE fire_at < $1
		RETURNING id, alert_id, rule_id, fire_at, create_time
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.DelayedNotification
	for rows.Next() {
		var d models.DelayedNotification
		if err := rows.Scan(&d.ID, &d.AlertID, &d.RuleID, &d.FireAt, &d.CreateTime); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// DeleteByAlert purges pending entries when the alert changes status
// or is removed.
func (r *DelayRepository) DeleteByAlert(ctx context.Context, alertID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM notification_delays WHERE alert_id=$1`, alertID)
	return err
}

// --- notification history ---

const notificationHistoryColumnList = `id, sent, message, channel_id, rule_id, alert_id,
	receiver, sender, sent_time, error, confirmed, confirmed_time`

type NotificationHistoryRepository struct {
	db *Database
}

func NewNotificationHistoryRepository(db *Database) *NotificationHistoryRepository {
	return &NotificationHistoryRepository{db: db}
}

func (r *NotificationHistoryRepository) Create(ctx context.Context, h *models.NotificationHistory) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO notification_history (`+notificationHistoryColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, h.ID, h.Sent, h.Message, h.ChannelID, h.RuleID, h.AlertID, h.Receiver, h.Sender,
		h.SentTime, h.Error, h.Confirmed, h.ConfirmedTime)
	return err
}

func scanNotificationHistory(row rowScanner) (*models.NotificationHistory, error) {
	var h models.NotificationHistory
	err := row.Scan(&h.ID, &h.Sent, &h.Message, &h.ChannelID, &h.RuleID, &h.AlertID,
		&h.Receiver, &h.Sender, &h.SentTime, &h.Error, &h.Confirmed, &h.ConfirmedTime)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *NotificationHistoryRepository) List(ctx context.Context, page, pageSize int) ([]models.NotificationHistory, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+notificationHistoryColumnList+` FROM notification_history
		ORDER BY sent_time DESC
		LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.NotificationHistory
	for rows.Next() {
		h, err := scanNotificationHistory(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM notification_history`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListSent returns delivered sends, newest first.
func (r *NotificationHistoryRepository) ListSent(ctx context.Context, page, pageSize int) ([]models.NotificationHistory, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+notificationHistoryColumnList+` FROM notification_history
		WHERE sent
		ORDER BY sent_time DESC
		LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.NotificationHistory
	for rows.Next() {
		h, err := scanNotificationHistory(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *h)
	}
	return list, rows.Err()
}

// ListByIDs fetches specific send records.
func (r *NotificationHistoryRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.NotificationHistory, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+notificationHistoryColumnList+` FROM notification_history WHERE id=ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.NotificationHistory
	for rows.Next() {
		h, err := scanNotificationHistory(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *h)
	}
	return list, rows.Err()
}

// Confirm marks a send as acknowledged by its receiver.
func (r *NotificationHistoryRepository) Confirm(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE notification_history SET confirmed=true, confirmed_time=$2 WHERE id=$1
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}
