package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ZUXXSU/chathubserver/internal/db"
	"github.com/ZUXXSU/chathubserver/internal/identity"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	query := `INSERT INTO users (id, name, username, email, password, bio, avatar_id, avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		u.ID, u.Name, u.Username, u.Email, u.Password, u.Bio, u.Avatar.PublicID, u.Avatar.URL,
	).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, name, username, email, password, bio, avatar_id, avatar_url, push_token, is_admin, created_at`

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.Password, &u.Bio,
		&u.Avatar.PublicID, &u.Avatar.URL, &u.PushToken, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = $1", username))
}

func (r *Repository) GetByID(ctx context.Context, id identity.ID) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (r *Repository) Profile(ctx context.Context, id identity.ID) (Profile, error) {
	var p Profile
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, avatar_url, push_token FROM users WHERE id = $1", id,
	).Scan(&p.ID, &p.Name, &p.Avatar, &p.PushToken)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, db.ErrNotFound
	}
	return p, err
}

// Search matches names containing query, skipping self and anyone already in
// a one-on-one chat with self.
func (r *Repository) Search(ctx context.Context, self identity.ID, query string) ([]Summary, error) {
	q := `SELECT u.id, u.name, u.avatar_url FROM users u
		WHERE u.id <> $1
		AND u.name ILIKE '%' || $2 || '%'
		AND u.id NOT IN (
			SELECT other.user_id FROM chats c
			JOIN chat_members me ON me.chat_id = c.id AND me.user_id = $1
			JOIN chat_members other ON other.chat_id = c.id
			WHERE c.group_chat = FALSE
		)
		ORDER BY u.name
		LIMIT 20`
	return r.summaries(ctx, q, self, query)
}

// Friends lists the other members of self's one-on-one chats.
func (r *Repository) Friends(ctx context.Context, self identity.ID) ([]Summary, error) {
	q := `SELECT DISTINCT u.id, u.name, u.avatar_url FROM chats c
		JOIN chat_members me ON me.chat_id = c.id AND me.user_id = $1
		JOIN chat_members other ON other.chat_id = c.id AND other.user_id <> $1
		JOIN users u ON u.id = other.user_id
		WHERE c.group_chat = FALSE
		ORDER BY u.name`
	return r.summaries(ctx, q, self)
}

func (r *Repository) summaries(ctx context.Context, q string, args ...any) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.Avatar); err != nil {
			return nil, err
		}
		users = append(users, s)
	}
	return users, rows.Err()
}

func (r *Repository) SetPushToken(ctx context.Context, id identity.ID, token string) error {
	return r.expectOne(r.db.ExecContext(ctx, "UPDATE users SET push_token = $2 WHERE id = $1", id, token))
}

func (r *Repository) SetAdmin(ctx context.Context, id identity.ID, admin bool) error {
	return r.expectOne(r.db.ExecContext(ctx, "UPDATE users SET is_admin = $2 WHERE id = $1", id, admin))
}

// RequestBetween reports whether a request exists in either direction.
func (r *Repository) RequestBetween(ctx context.Context, a, b identity.ID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM requests
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
	)`, a, b).Scan(&exists)
	return exists, err
}

func (r *Repository) CreateRequest(ctx context.Context, req *Request) error {
	return r.db.QueryRowContext(ctx,
		"INSERT INTO requests (id, sender_id, receiver_id, status) VALUES ($1, $2, $3, $4) RETURNING created_at",
		req.ID, req.SenderID, req.ReceiverID, req.Status,
	).Scan(&req.CreatedAt)
}

func (r *Repository) GetRequest(ctx context.Context, id string) (*Request, error) {
	req := &Request{}
	err := r.db.QueryRowContext(ctx,
		"SELECT id, sender_id, receiver_id, status, created_at FROM requests WHERE id = $1", id,
	).Scan(&req.ID, &req.SenderID, &req.ReceiverID, &req.Status, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *Repository) DeleteRequest(ctx context.Context, id string) error {
	return r.expectOne(r.db.ExecContext(ctx, "DELETE FROM requests WHERE id = $1", id))
}

// IncomingRequests lists pending requests addressed to receiver.
func (r *Repository) IncomingRequests(ctx context.Context, receiver identity.ID) ([]Notification, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT r.id, u.id, u.name, u.avatar_url
		FROM requests r JOIN users u ON u.id = r.sender_id
		WHERE r.receiver_id = $1 AND r.status = 'pending'
		ORDER BY r.created_at DESC`, receiver)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Sender.ID, &n.Sender.Name, &n.Sender.Avatar); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repository) expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}
