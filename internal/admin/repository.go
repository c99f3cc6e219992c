package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Users(ctx context.Context) ([]UserRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT u.id, u.name, u.username, u.avatar_url, u.created_at,
			(SELECT count(*) FROM chat_members m JOIN chats c ON c.id = m.chat_id
				WHERE m.user_id = u.id AND c.group_chat),
			(SELECT count(*) FROM chat_members m JOIN chats c ON c.id = m.chat_id
				WHERE m.user_id = u.id AND NOT c.group_chat)
		FROM users u ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []UserRow{}
	for rows.Next() {
		var u UserRow
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &u.Avatar, &u.CreatedAt, &u.Groups, &u.Friends); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const avatarPreview = 3

func (r *Repository) Chats(ctx context.Context) ([]ChatRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT c.id, c.group_chat, c.name,
			COALESCE(cu.name, ''), COALESCE(cu.avatar_url, ''),
			COALESCE((SELECT json_agg(json_build_object('_id', u.id, 'name', u.name, 'avatar', u.avatar_url) ORDER BY m.position)
				FROM chat_members m JOIN users u ON u.id = m.user_id WHERE m.chat_id = c.id), '[]'),
			(SELECT count(*) FROM messages WHERE chat_id = c.id)
		FROM chats c LEFT JOIN users cu ON cu.id = c.creator_id
		ORDER BY c.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	out := []ChatRow{}
	for rows.Next() {
		var (
			c       ChatRow
			members []byte
		)
		if err := rows.Scan(&c.ID, &c.GroupChat, &c.Name, &c.Creator.Name, &c.Creator.Avatar, &members, &c.TotalMessages); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(members, &c.Members); err != nil {
			return nil, fmt.Errorf("decode members of %s: %w", c.ID, err)
		}
		if c.Creator.Name == "" {
			c.Creator.Name = "None"
		}
		c.TotalMembers = len(c.Members)
		c.Avatar = lo.Map(lo.Slice(c.Members, 0, avatarPreview), func(p Person, _ int) string { return p.Avatar })
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) Messages(ctx context.Context) ([]MessageRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT m.id, m.attachments, m.content, m.created_at, m.chat_id,
			c.group_chat, m.sender_id, m.sender_name, COALESCE(u.avatar_url, '')
		FROM messages m JOIN chats c ON c.id = m.chat_id LEFT JOIN users u ON u.id = m.sender_id
		ORDER BY m.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []MessageRow{}
	for rows.Next() {
		var (
			m           MessageRow
			attachments []byte
		)
		if err := rows.Scan(&m.ID, &attachments, &m.Content, &m.CreatedAt, &m.ChatID,
			&m.GroupChat, &m.Sender.ID, &m.Sender.Name, &m.Sender.Avatar); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments of %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := r.db.QueryRowContext(ctx, `SELECT
			(SELECT count(*) FROM chats WHERE group_chat),
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM messages),
			(SELECT count(*) FROM chats)`).
		Scan(&c.Groups, &c.Users, &c.Messages, &c.Chats)
	if err != nil {
		return Counts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

// MessageTimes returns the creation time of every message newer than since.
func (r *Repository) MessageTimes(ctx context.Context, since time.Time) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT created_at FROM messages WHERE created_at > $1`, since)
	if err != nil {
		return nil, fmt.Errorf("message times: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
