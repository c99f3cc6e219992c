package chat

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ZUXXSU/chathubserver/internal/db"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return NewRepository(conn), mock
}

func TestRepository_SaveMessageUsesServerTimestamp(t *testing.T) {
	req := require.New(t)
	repo, mock := newMockRepo(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO messages")).
		WithArgs(sqlmock.AnyArg(), "c1", identity.ID("u1"), "Uno", "hi", []byte("[]")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	m := &Message{ChatID: "c1", Content: "hi", Sender: SenderRef{ID: "u1", Name: "Uno"}}
	req.NoError(repo.SaveMessage(context.Background(), m))

	req.NotEmpty(m.ID)
	req.Equal(created, m.CreatedAt)
}

func TestRepository_GetChat(t *testing.T) {
	req := require.New(t)
	repo, mock := newMockRepo(t)
	created := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM chats c WHERE c.id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "group_chat", "creator_id", "created_at", "members"}).
			AddRow("c1", "Team", true, "u1", created, []byte(`["u1","u2","u3"]`)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM chats c WHERE c.id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "group_chat", "creator_id", "created_at", "members"}))

	c, err := repo.GetChat(context.Background(), "c1")
	req.NoError(err)
	req.Equal([]identity.ID{"u1", "u2", "u3"}, c.Members)
	req.Equal(identity.ID("u1"), c.Creator)
	req.True(c.GroupChat)

	_, err = repo.GetChat(context.Background(), "missing")
	req.ErrorIs(err, db.ErrNotFound)
}

func TestRepository_MessagesPageIsOldestFirst(t *testing.T) {
	req := require.New(t)
	repo, mock := newMockRepo(t)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM messages")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(41))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs("c1", MessagesPerPage, MessagesPerPage).
		WillReturnRows(sqlmock.NewRows([]string{"id", "chat_id", "sender_id", "sender_name", "content", "attachments", "created_at"}).
			AddRow("m2", "c1", "u1", "Uno", "second", []byte(`[]`), t2).
			AddRow("m1", "c1", "u2", "Dos", "first", []byte(`[{"public_id":"raw_x","url":"http://x"}]`), t1))

	msgs, pages, err := repo.Messages(context.Background(), "c1", 2)

	req.NoError(err)
	req.Equal(3, pages)
	req.Equal("m1", msgs[0].ID)
	req.Equal("raw_x", msgs[0].Attachments[0].PublicID)
	req.Equal("m2", msgs[1].ID)
}

func TestRepository_CreateChatInTransaction(t *testing.T) {
	req := require.New(t)
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chats")).
		WithArgs(sqlmock.AnyArg(), "a-b", false, identity.ID("")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chat_members")).
		WithArgs(sqlmock.AnyArg(), identity.ID("a"), 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chat_members")).
		WithArgs(sqlmock.AnyArg(), identity.ID("b"), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := repo.CreateChat(context.Background(), "a-b", false, "", []identity.ID{"a", "b", "a"})

	req.NoError(err)
	req.NotEmpty(id)
}

func TestRepository_LeaveGroupHandsOverInTransaction(t *testing.T) {
	req := require.New(t)
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chats SET creator_id")).
		WithArgs("g", identity.ID("b")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chat_members")).
		WithArgs("g", identity.ID("a")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req.NoError(repo.LeaveGroup(context.Background(), "g", "a", "b"))
}

func TestRepository_LeaveGroupRollsBackHandOver(t *testing.T) {
	req := require.New(t)
	repo, mock := newMockRepo(t)

	// Given the member removal fails after the creator update
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chats SET creator_id")).
		WithArgs("g", identity.ID("b")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chat_members")).
		WithArgs("g", identity.ID("a")).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	// When
	err := repo.LeaveGroup(context.Background(), "g", "a", "b")

	// Then the hand-over is rolled back with it
	req.ErrorContains(err, "deadlock detected")
}

func TestRepository_LeaveGroupWithoutHandOver(t *testing.T) {
	req := require.New(t)
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chat_members")).
		WithArgs("g", identity.ID("c")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req.NoError(repo.LeaveGroup(context.Background(), "g", "c", ""))
}
