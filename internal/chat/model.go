package chat

import (
	"time"

	"github.com/ZUXXSU/chathubserver/internal/blob"
	"github.com/ZUXXSU/chathubserver/internal/identity"
)

const (
	MinGroupMembers = 3
	MaxGroupMembers = 100
	MaxAttachments  = 5
	MessagesPerPage = 20
)

type Chat struct {
	ID        string        `json:"_id"`
	Name      string        `json:"name"`
	GroupChat bool          `json:"groupChat"`
	Creator   identity.ID   `json:"creator,omitempty"`
	Members   []identity.ID `json:"members"`
	CreatedAt time.Time     `json:"createdAt"`
}

func (c *Chat) HasMember(id identity.ID) bool {
	for _, m := range c.Members {
		if m == id {
			return true
		}
	}
	return false
}

type SenderRef struct {
	ID   identity.ID `json:"_id"`
	Name string      `json:"name"`
}

// Message is the durable record. CreatedAt is assigned by the database.
type Message struct {
	ID          string        `json:"_id"`
	ChatID      string        `json:"chat"`
	Content     string        `json:"content"`
	Sender      SenderRef     `json:"sender"`
	Attachments []blob.Object `json:"attachments"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// TransientMessage is what connected members receive. It is built per send
// and never stored as is.
type TransientMessage struct {
	ID          string        `json:"_id"`
	Content     string        `json:"content"`
	Sender      SenderRef     `json:"sender"`
	ChatID      string        `json:"chat"`
	Attachments []blob.Object `json:"attachments,omitempty"`
	CreatedAt   string        `json:"createdAt"`
}

// NewMessageEvent is the outbound new-message payload.
type NewMessageEvent struct {
	ChatID  string           `json:"chatId"`
	Message TransientMessage `json:"message"`
}

// ChatView is a chat list entry. For one-on-one chats the name and avatar
// are the other member's.
type ChatView struct {
	ID        string        `json:"_id"`
	Name      string        `json:"name"`
	GroupChat bool          `json:"groupChat"`
	Avatar    []string      `json:"avatar"`
	Members   []identity.ID `json:"members"`
	Creator   identity.ID   `json:"creator,omitempty"`
}

type MemberView struct {
	ID     identity.ID `json:"_id"`
	Name   string      `json:"name"`
	Avatar string      `json:"avatar"`
}

type NewGroupRequest struct {
	Name    string        `json:"name" validate:"required"`
	Members []identity.ID `json:"members" validate:"required,min=2,max=100,dive,required"`
}

type AddMembersRequest struct {
	ChatID  string        `json:"chatId" validate:"required"`
	Members []identity.ID `json:"members" validate:"required,min=1,max=97,dive,required"`
}

type RemoveMemberRequest struct {
	ChatID string      `json:"chatId" validate:"required"`
	UserID identity.ID `json:"userId" validate:"required"`
}

type RenameRequest struct {
	Name string `json:"name" validate:"required"`
}
