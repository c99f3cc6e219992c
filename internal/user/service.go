package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ZUXXSU/chathubserver/internal/apperr"
	"github.com/ZUXXSU/chathubserver/internal/blob"
	"github.com/ZUXXSU/chathubserver/internal/db"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/realtime"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Store is the persistence the service needs. *Repository implements it.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id identity.ID) (*User, error)
	Search(ctx context.Context, self identity.ID, query string) ([]Summary, error)
	Friends(ctx context.Context, self identity.ID) ([]Summary, error)
	SetPushToken(ctx context.Context, id identity.ID, token string) error
	RequestBetween(ctx context.Context, a, b identity.ID) (bool, error)
	CreateRequest(ctx context.Context, req *Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	DeleteRequest(ctx context.Context, id string) error
	IncomingRequests(ctx context.Context, receiver identity.ID) ([]Notification, error)
}

// Chats is the part of the chat store used for friendships.
type Chats interface {
	CreateChat(ctx context.Context, name string, group bool, creator identity.ID, members []identity.ID) (string, error)
	Members(ctx context.Context, chatID string) ([]identity.ID, error)
}

type ProfileInvalidator interface {
	Invalidate(ctx context.Context, id identity.ID) error
}

type TokenIssuer interface {
	Issue(p identity.Principal) (string, error)
}

type Service struct {
	repo    Store
	chats   Chats
	emitter realtime.Emitter
	cache   ProfileInvalidator
	tokens  TokenIssuer
	blobs   blob.Store
	logger  *zap.Logger
}

func NewService(repo Store, chats Chats, emitter realtime.Emitter, cache ProfileInvalidator, tokens TokenIssuer, blobs blob.Store, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		chats:   chats,
		emitter: emitter,
		cache:   cache,
		tokens:  tokens,
		blobs:   blobs,
		logger:  logger.Named("user"),
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest, avatar blob.File) (*LoginResponse, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(err, "hash password")
	}

	objs, err := s.blobs.Upload(ctx, []blob.File{avatar})
	if err != nil {
		return nil, apperr.Wrap(err, "upload avatar")
	}

	u := &User{
		ID:       identity.ID(uuid.NewString()),
		Name:     req.Name,
		Username: strings.ToLower(req.Username),
		Email:    req.Email,
		Password: string(hashedPwd),
		Bio:      req.Bio,
		Avatar:   Avatar{PublicID: objs[0].PublicID, URL: objs[0].URL},
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		s.blobs.Delete(context.WithoutCancel(ctx), []string{objs[0].PublicID})
		return nil, apperr.Wrap(err, "create user")
	}

	return s.issue(u)
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.ToLower(req.Username))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.Unauthenticated("Invalid Username or Password")
		}
		return nil, apperr.Wrap(err, "load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, apperr.Unauthenticated("Invalid Username or Password")
	}
	return s.issue(u)
}

func (s *Service) issue(u *User) (*LoginResponse, error) {
	token, err := s.tokens.Issue(identity.Principal{ID: u.ID, Name: u.Name, Admin: u.IsAdmin})
	if err != nil {
		return nil, apperr.Wrap(err, "issue token")
	}
	return &LoginResponse{Success: true, Token: token, User: u}, nil
}

func (s *Service) Me(ctx context.Context, id identity.ID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFoundf("User not found")
	}
	return u, apperr.Wrap(err, "load user")
}

func (s *Service) Search(ctx context.Context, self identity.ID, name string) ([]Summary, error) {
	users, err := s.repo.Search(ctx, self, name)
	return users, apperr.Wrap(err, "search users")
}

func (s *Service) SendRequest(ctx context.Context, from identity.ID, to identity.ID) error {
	if from == to {
		return apperr.Invalid("You cannot send a request to yourself")
	}
	if _, err := s.repo.GetByID(ctx, to); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFoundf("User not found")
		}
		return apperr.Wrap(err, "load receiver")
	}

	exists, err := s.repo.RequestBetween(ctx, from, to)
	if err != nil {
		return apperr.Wrap(err, "check request")
	}
	if exists {
		return apperr.Invalid("Request already sent")
	}

	req := &Request{ID: uuid.NewString(), SenderID: from, ReceiverID: to, Status: StatusPending}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return apperr.Wrap(err, "create request")
	}

	s.emitter.Deliver([]identity.ID{to}, realtime.EventNewRequest, nil)
	return nil
}

// AcceptRequest settles a pending request addressed to self. Accepting opens a
// one-on-one chat between the two users and returns the sender's id.
func (s *Service) AcceptRequest(ctx context.Context, self identity.ID, requestID string, accept bool) (identity.ID, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", apperr.NotFoundf("Request not found")
		}
		return "", apperr.Wrap(err, "load request")
	}
	if req.ReceiverID != self {
		return "", apperr.Unauthenticated("You are not authorized to accept this request")
	}

	if !accept {
		if err := s.repo.DeleteRequest(ctx, req.ID); err != nil {
			return "", apperr.Wrap(err, "delete request")
		}
		return "", nil
	}

	sender, err := s.repo.GetByID(ctx, req.SenderID)
	if err != nil {
		return "", apperr.Wrap(err, "load sender")
	}
	receiver, err := s.repo.GetByID(ctx, req.ReceiverID)
	if err != nil {
		return "", apperr.Wrap(err, "load receiver")
	}

	members := []identity.ID{req.SenderID, req.ReceiverID}
	name := fmt.Sprintf("%s-%s", sender.Name, receiver.Name)
	if _, err := s.chats.CreateChat(ctx, name, false, "", members); err != nil {
		return "", apperr.Wrap(err, "create chat")
	}
	if err := s.repo.DeleteRequest(ctx, req.ID); err != nil {
		return "", apperr.Wrap(err, "delete request")
	}

	s.emitter.Deliver(members, realtime.EventRefetchChats, nil)
	return req.SenderID, nil
}

func (s *Service) Notifications(ctx context.Context, self identity.ID) ([]Notification, error) {
	n, err := s.repo.IncomingRequests(ctx, self)
	return n, apperr.Wrap(err, "load notifications")
}

// Friends lists self's one-on-one partners. With a chat id, partners who are
// already members of that chat are left out.
func (s *Service) Friends(ctx context.Context, self identity.ID, chatID string) ([]Summary, error) {
	friends, err := s.repo.Friends(ctx, self)
	if err != nil {
		return nil, apperr.Wrap(err, "load friends")
	}
	if chatID == "" {
		return friends, nil
	}

	members, err := s.chats.Members(ctx, chatID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFoundf("Chat not found")
		}
		return nil, apperr.Wrap(err, "load chat")
	}
	return lo.Reject(friends, func(f Summary, _ int) bool {
		return lo.Contains(members, f.ID)
	}), nil
}

// UpdatePushToken overwrites the stored token and drops the cached profile so
// the next push reads the new one. If the cache cannot be cleared the call
// fails, so the client sends its token again instead of pushes going to the
// old one until the cache entry expires.
func (s *Service) UpdatePushToken(ctx context.Context, self identity.ID, token string) error {
	if err := s.repo.SetPushToken(ctx, self, token); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFoundf("User not found")
		}
		return apperr.Wrap(err, "save push token")
	}
	if err := s.cache.Invalidate(ctx, self); err != nil {
		s.logger.Error("invalidate profile cache", zap.String("identity", string(self)), zap.Error(err))
		return apperr.Wrap(err, "invalidate profile cache")
	}
	return nil
}
