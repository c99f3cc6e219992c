package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/ZUXXSU/chathubserver/internal/blob"
	"github.com/ZUXXSU/chathubserver/internal/db"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const chatSelect = `SELECT c.id, c.name, c.group_chat, COALESCE(c.creator_id, ''), c.created_at,
	COALESCE((SELECT json_agg(m.user_id ORDER BY m.position) FROM chat_members m WHERE m.chat_id = c.id), '[]')
	FROM chats c`

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (*Chat, error) {
	c := &Chat{}
	var members []byte
	if err := row.Scan(&c.ID, &c.Name, &c.GroupChat, &c.Creator, &c.CreatedAt, &members); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(members, &c.Members); err != nil {
		return nil, fmt.Errorf("decode members of %s: %w", c.ID, err)
	}
	return c, nil
}

func toStrings(ids []identity.ID) []string {
	return lo.Map(ids, func(id identity.ID, _ int) string { return string(id) })
}

// CreateChat inserts the chat and its ordered members in one transaction.
func (r *Repository) CreateChat(ctx context.Context, name string, group bool, creator identity.ID, members []identity.ID) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO chats (id, name, group_chat, creator_id) VALUES ($1, $2, $3, NULLIF($4, ''))",
		id, name, group, creator,
	); err != nil {
		return "", fmt.Errorf("insert chat: %w", err)
	}
	for i, m := range lo.Uniq(members) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chat_members (chat_id, user_id, position) VALUES ($1, $2, $3)",
			id, m, i,
		); err != nil {
			return "", fmt.Errorf("insert member %s: %w", m, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetChat(ctx context.Context, id string) (*Chat, error) {
	c, err := scanChat(r.db.QueryRowContext(ctx, chatSelect+" WHERE c.id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	return c, err
}

func (r *Repository) Members(ctx context.Context, id string) ([]identity.ID, error) {
	c, err := r.GetChat(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Members, nil
}

// ChatsFor lists the chats member belongs to, newest first.
func (r *Repository) ChatsFor(ctx context.Context, member identity.ID, groupsOnly bool) ([]Chat, error) {
	q := chatSelect + ` WHERE EXISTS (SELECT 1 FROM chat_members cm WHERE cm.chat_id = c.id AND cm.user_id = $1)`
	if groupsOnly {
		q += ` AND c.group_chat = TRUE AND c.creator_id = $1`
	}
	q += ` ORDER BY c.created_at DESC`

	rows, err := r.db.QueryContext(ctx, q, member)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// Users loads display data for ids, keyed by id.
func (r *Repository) Users(ctx context.Context, ids []identity.ID) (map[identity.ID]MemberView, error) {
	out := make(map[identity.ID]MemberView, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, avatar_url FROM users WHERE id = ANY($1)", toStrings(lo.Uniq(ids)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m MemberView
		if err := rows.Scan(&m.ID, &m.Name, &m.Avatar); err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

// AddMembers appends ids after the current last position, skipping existing
// members.
func (r *Repository) AddMembers(ctx context.Context, chatID string, ids []identity.ID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position) + 1, 0) FROM chat_members WHERE chat_id = $1", chatID,
	).Scan(&next); err != nil {
		return err
	}
	for _, id := range lo.Uniq(ids) {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO chat_members (chat_id, user_id, position) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
			chatID, id, next)
		if err != nil {
			return fmt.Errorf("add member %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			next++
		}
	}
	return tx.Commit()
}

func (r *Repository) RemoveMember(ctx context.Context, chatID string, id identity.ID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM chat_members WHERE chat_id = $1 AND user_id = $2", chatID, id)
	return err
}

// LeaveGroup removes leaver and, when newCreator is set, hands the group over
// in the same transaction.
func (r *Repository) LeaveGroup(ctx context.Context, chatID string, leaver, newCreator identity.ID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if newCreator != "" {
		if _, err := tx.ExecContext(ctx, "UPDATE chats SET creator_id = $2 WHERE id = $1", chatID, newCreator); err != nil {
			return fmt.Errorf("hand over %s: %w", chatID, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chat_members WHERE chat_id = $1 AND user_id = $2", chatID, leaver,
	); err != nil {
		return fmt.Errorf("remove %s: %w", leaver, err)
	}
	return tx.Commit()
}

func (r *Repository) Rename(ctx context.Context, chatID, name string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE chats SET name = $2 WHERE id = $1", chatID, name)
	return err
}

// DeleteChat removes the chat with its members and messages and returns the
// blob ids the messages referenced.
func (r *Repository) DeleteChat(ctx context.Context, chatID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT attachments FROM messages WHERE chat_id = $1 AND attachments <> '[]'::jsonb", chatID)
	if err != nil {
		return nil, err
	}
	var publicIDs []string
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, err
		}
		var objs []blob.Object
		if err := json.Unmarshal(raw, &objs); err != nil {
			rows.Close()
			return nil, err
		}
		for _, o := range objs {
			publicIDs = append(publicIDs, o.PublicID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := r.db.ExecContext(ctx, "DELETE FROM chats WHERE id = $1", chatID); err != nil {
		return nil, err
	}
	return publicIDs, nil
}

// SaveMessage inserts m and fills in its id and server timestamp.
func (r *Repository) SaveMessage(ctx context.Context, m *Message) error {
	if m.Attachments == nil {
		m.Attachments = []blob.Object{}
	}
	attachments, err := json.Marshal(m.Attachments)
	if err != nil {
		return err
	}
	m.ID = uuid.NewString()
	query := `INSERT INTO messages (id, chat_id, sender_id, sender_name, content, attachments)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`
	return r.db.QueryRowContext(ctx, query,
		m.ID, m.ChatID, m.Sender.ID, m.Sender.Name, m.Content, attachments,
	).Scan(&m.CreatedAt)
}

// Messages returns one page, oldest first within the page, and the page count.
func (r *Repository) Messages(ctx context.Context, chatID string, page int) ([]Message, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE chat_id = $1", chatID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, chat_id, sender_id, sender_name, content, attachments, created_at
		FROM messages WHERE chat_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, chatID, MessagesPerPage, (page-1)*MessagesPerPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var raw []byte
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender.ID, &m.Sender.Name, &m.Content, &raw, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(raw, &m.Attachments); err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	slices.Reverse(msgs)
	totalPages := (total + MessagesPerPage - 1) / MessagesPerPage
	return msgs, totalPages, nil
}
