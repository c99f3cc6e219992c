// Package admin serves the dashboard: secret-key elevation plus read-only
// listings and counters over users, chats and messages.
package admin

import (
	"time"

	"github.com/ZUXXSU/chathubserver/internal/blob"
	"github.com/ZUXXSU/chathubserver/internal/identity"
)

type VerifyRequest struct {
	SecretKey string `json:"secretKey" validate:"required"`
}

type UserRow struct {
	ID        identity.ID `json:"_id"`
	Name      string      `json:"name"`
	Username  string      `json:"username"`
	Avatar    string      `json:"avatar"`
	Groups    int         `json:"groups"`
	Friends   int         `json:"friends"`
	CreatedAt time.Time   `json:"createdAt"`
}

// VisitorRow is an anonymous analytics record shaped like a user row.
type VisitorRow struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar"`
	OS        string    `json:"os"`
	Network   string    `json:"network"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"createdAt"`
}

type Person struct {
	ID     identity.ID `json:"_id,omitempty"`
	Name   string      `json:"name"`
	Avatar string      `json:"avatar"`
}

type ChatRow struct {
	ID            string   `json:"_id"`
	GroupChat     bool     `json:"groupChat"`
	Name          string   `json:"name"`
	Avatar        []string `json:"avatar"`
	Members       []Person `json:"members"`
	Creator       Person   `json:"creator"`
	TotalMembers  int      `json:"totalMembers"`
	TotalMessages int      `json:"totalMessages"`
}

type MessageRow struct {
	ID          string        `json:"_id"`
	Attachments []blob.Object `json:"attachments"`
	Content     string        `json:"content"`
	CreatedAt   time.Time     `json:"createdAt"`
	ChatID      string        `json:"chat"`
	GroupChat   bool          `json:"groupChat"`
	Sender      Person        `json:"sender"`
}

type Counts struct {
	Groups   int `json:"groupsCount"`
	Users    int `json:"usersCount"`
	Messages int `json:"messagesCount"`
	Chats    int `json:"totalChatsCount"`
}

// ChartDays is the width of the message chart; the last slot is today.
const ChartDays = 7

type Stats struct {
	Counts
	MessagesChart [ChartDays]int `json:"messagesChart"`
}
