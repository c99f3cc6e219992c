package user

import (
	"time"

	"github.com/ZUXXSU/chathubserver/internal/identity"
)

type User struct {
	ID        identity.ID `json:"_id"`
	Name      string      `json:"name"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Bio       string      `json:"bio"`
	Avatar    Avatar      `json:"avatar"`
	Password  string      `json:"-"`
	PushToken string      `json:"-"`
	IsAdmin   bool        `json:"-"`
	CreatedAt time.Time   `json:"createdAt"`
}

type Avatar struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

// Profile is the slice of a user the realtime and push paths need.
type Profile struct {
	ID        identity.ID `json:"id"`
	Name      string      `json:"name"`
	Avatar    string      `json:"avatar"`
	PushToken string      `json:"push_token"`
}

// Summary is how other users are listed.
type Summary struct {
	ID     identity.ID `json:"_id"`
	Name   string      `json:"name"`
	Avatar string      `json:"avatar"`
}

const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

type Request struct {
	ID         string
	SenderID   identity.ID
	ReceiverID identity.ID
	Status     string
	CreatedAt  time.Time
}

type Notification struct {
	ID     string  `json:"_id"`
	Sender Summary `json:"sender"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Bio      string `json:"bio" validate:"required"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	User    *User  `json:"user"`
}

type SendRequestBody struct {
	UserID identity.ID `json:"userId" validate:"required"`
}

type AcceptRequestBody struct {
	RequestID string `json:"requestId" validate:"required"`
	Accept    *bool  `json:"accept" validate:"required"`
}

type PushTokenBody struct {
	Token string `json:"token" validate:"required"`
}
