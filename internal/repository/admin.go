package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"alertd/internal/models"
	pkgerrors "alertd/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- users ---

const userColumnList = `id, name, login, email, password, status, roles, text, email_verified,
	phone_number, country, create_time, last_login, update_time`

type UserRepository struct {
	db *Database
}

func NewUserRepository(db *Database) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Login, &u.Email, &u.Password, &u.Status, &u.Roles,
		&u.Text, &u.EmailVerified, &u.PhoneNumber, &u.Country, &u.CreateTime, &u.LastLogin,
		&u.UpdateTime)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO users (`+userColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, u.ID, u.Name, u.Login, u.Email, u.Password, u.Status, u.Roles, u.Text,
		u.EmailVerified, u.PhoneNumber, u.Country, u.CreateTime, u.LastLogin, u.UpdateTime)
	return err
}

func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+userColumnList+` FROM users WHERE id=$1`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	return u, err
}

func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+userColumnList+` FROM users WHERE login=$1 OR email=$1`, login)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	return u, err
}

// GetByIDs resolves a set of user ids; unknown ids are skipped.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+userColumnList+` FROM users WHERE id::text=ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *u)
	}
	return list, rows.Err()
}

func (r *UserRepository) List(ctx context.Context, page, pageSize int) ([]models.User, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+userColumnList+` FROM users ORDER BY name LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE users
		SET name=$2, login=$3, email=$4, password=$5, status=$6, roles=$7, text=$8,
		    email_verified=$9, phone_number=$10, country=$11, update_time=$12
		WHERE id=$1
	`, u.ID, u.Name, u.Login, u.Email, u.Password, u.Status, u.Roles, u.Text,
		u.EmailVerified, u.PhoneNumber, u.Country, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (r *UserRepository) SetLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE users SET last_login=$2 WHERE id=$1`, id, at)
	return err
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (r *UserRepository) CountByLogin(ctx context.Context, login string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE login=$1`, login).Scan(&count)
	return count, err
}

// --- api keys ---

const keyColumnList = `key, "user", scopes, text, expire_time, count, last_used_time, customer`

type KeyRepository struct {
	db *Database
}

func NewKeyRepository(db *Database) *KeyRepository {
	return &KeyRepository{db: db}
}

func scanKey(row rowScanner) (*models.APIKey, error) {
	var k models.APIKey
	err := row.Scan(&k.Key, &k.User, &k.Scopes, &k.Text, &k.ExpireTime, &k.Count,
		&k.LastUsedTime, &k.Customer)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *KeyRepository) Create(ctx context.Context, k *models.APIKey) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO api_keys (`+keyColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, k.Key, k.User, k.Scopes, k.Text, k.ExpireTime, k.Count, k.LastUsedTime, k.Customer)
	return err
}

func (r *KeyRepository) Get(ctx context.Context, key string) (*models.APIKey, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+keyColumnList+` FROM api_keys WHERE key=$1`, key)
	k, err := scanKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	return k, err
}

func (r *KeyRepository) List(ctx context.Context, page, pageSize int) ([]models.APIKey, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+keyColumnList+` FROM api_keys ORDER BY expire_time DESC LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Touch bumps the usage counter and last-used stamp.
func (r *KeyRepository) Touch(ctx context.Context, key string, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE api_keys SET count=count+1, last_used_time=$2 WHERE key=$1
	`, key, at)
	return err
}

func (r *KeyRepository) Delete(ctx context.Context, key string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM api_keys WHERE key=$1`, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

// --- customers ---

type CustomerRepository struct {
	db *Database
}

func NewCustomerRepository(db *Database) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) Create(ctx context.Context, c *models.Customer) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO customers (id, match, customer) VALUES ($1,$2,$3)
	`, c.ID, c.Match, c.Customer)
	return err
}

func (r *CustomerRepository) List(ctx context.Context, page, pageSize int) ([]models.Customer, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, match, customer FROM customers ORDER BY customer LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Match, &c.Customer); err != nil {
			return nil, 0, err
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// MatchCustomers returns the customer names whose match pattern
// equals the login or its mail domain.
func (r *CustomerRepository) MatchCustomers(ctx context.Context, matches []string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT DISTINCT customer FROM customers WHERE match=ANY($1)`, matches)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CustomerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM customers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

// --- permissions ---

type PermRepository struct {
	db *Database
}

func NewPermRepository(db *Database) *PermRepository {
	return &PermRepository{db: db}
}

func (r *PermRepository) Create(ctx context.Context, p *models.Permission) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO perms (id, match, scopes) VALUES ($1,$2,$3)
	`, p.ID, p.Match, p.Scopes)
	return err
}

func (r *PermRepository) List(ctx context.Context, page, pageSize int) ([]models.Permission, int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, match, scopes FROM perms ORDER BY match LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.ID, &p.Match, &p.Scopes); err != nil {
			return nil, 0, err
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM perms`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ScopesForRoles unions the scopes granted to the given roles.
func (r *PermRepository) ScopesForRoles(ctx context.Context, roles []string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT scopes FROM perms WHERE match=ANY($1)`, roles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[string]bool{}
	var out []string
	for rows.Next() {
		var scopes []string
		if err := rows.Scan(&scopes); err != nil {
			return nil, err
		}
		for _, s := range scopes {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out, rows.Err()
}

func (r *PermRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM perms WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

// --- notes ---

type NoteRepository struct {
	db *Database
}

func NewNoteRepository(db *Database) *NoteRepository {
	return &NoteRepository{db: db}
}

const noteColumnList = `id, text, "user", type, alert_id, create_time, update_time`

func (r *NoteRepository) Create(ctx context.Context, n *models.Note) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO notes (`+noteColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, n.ID, n.Text, n.User, n.Type, n.AlertID, n.CreateTime, n.UpdateTime)
	return err
}

func (r *NoteRepository) Get(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	var n models.Note
	err := r.db.Pool.QueryRow(ctx, `SELECT `+noteColumnList+` FROM notes WHERE id=$1`, id).
		Scan(&n.ID, &n.Text, &n.User, &n.Type, &n.AlertID, &n.CreateTime, &n.UpdateTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NoteRepository) ListByAlert(ctx context.Context, alertID uuid.UUID) ([]models.Note, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+noteColumnList+` FROM notes WHERE alert_id=$1 ORDER BY create_time DESC
	`, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Note
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.Text, &n.User, &n.Type, &n.AlertID, &n.CreateTime, &n.UpdateTime); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func (r *NoteRepository) List(ctx context.Context) ([]models.Note, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+noteColumnList+` FROM notes ORDER BY create_time DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Note
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.Text, &n.User, &n.Type, &n.AlertID, &n.CreateTime, &n.UpdateTime); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func (r *NoteRepository) Update(ctx context.Context, n *models.Note) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE notes SET text=$2, update_time=$3 WHERE id=$1
	`, n.ID, n.Text, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (r *NoteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM notes WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

// --- heartbeats ---

const heartbeatColumnList = `id, origin, tags, type, create_time, timeout, receive_time,
	customer, attributes`

type HeartbeatRepository struct {
	db *Database
}

func NewHeartbeatRepository(db *Database) *HeartbeatRepository {
	return &HeartbeatRepository{db: db}
}

// Upsert stores a heartbeat keyed by (origin, customer).
func (r *HeartbeatRepository) Upsert(ctx context.Context, h *models.Heartbeat) (*models.Heartbeat, error) {
	attrs, err := jsonMarshalMap(h.Attributes)
	if err != nil {
		return nil, err
	}
	row := r.db.Pool.QueryRow(ctx, `
		INSERT INTO heartbeats (`+heartbeatColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (origin, COALESCE(customer, '')) DO UPDATE
		SET tags=EXCLUDED.tags, type=EXCLUDED.type, create_time=EXCLUDED.create_time,
		    timeout=EXCLUDED.timeout, receive_time=EXCLUDED.receive_time,
		    attributes=EXCLUDED.attributes
		RETURNING `+heartbeatColumnList,
		h.ID, h.Origin, h.Tags, h.Type, h.CreateTime, h.Timeout, h.ReceiveTime, h.Customer, attrs)
	return scanHeartbeat(row)
}

func scanHeartbeat(row rowScanner) (*models.Heartbeat, error) {
	var h models.Heartbeat
	var attrs []byte
	err := row.Scan(&h.ID, &h.Origin, &h.Tags, &h.Type, &h.CreateTime, &h.Timeout,
		&h.ReceiveTime, &h.Customer, &attrs)
	if err != nil {
		return nil, err
	}
	if err := jsonUnmarshalMap(attrs, &h.Attributes); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *HeartbeatRepository) Get(ctx context.Context, id uuid.UUID) (*models.Heartbeat, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+heartbeatColumnList+` FROM heartbeats WHERE id=$1`, id)
	h, err := scanHeartbeat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	return h, err
}

func (r *HeartbeatRepository) List(ctx context.Context) ([]models.Heartbeat, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+heartbeatColumnList+` FROM heartbeats ORDER BY receive_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Heartbeat
	for rows.Next() {
		h, err := scanHeartbeat(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *h)
	}
	return list, rows.Err()
}

func jsonMarshalMap(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		m = map[string]interface{}{}
	}
	return json.Marshal(m)
}

func jsonUnmarshalMap(raw []byte, dst *map[string]interface{}) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, dst); err != nil {
			return err
		}
	}
	if *dst == nil {
		*dst = map[string]interface{}{}
	}
	return nil
}

func (r *HeartbeatRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM heartbeats WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}
