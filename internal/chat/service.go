package chat

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/ZUXXSU/chathubserver/internal/apperr"
	"github.com/ZUXXSU/chathubserver/internal/blob"
	"github.com/ZUXXSU/chathubserver/internal/db"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/realtime"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Store is the persistence the service needs. *Repository implements it.
type Store interface {
	CreateChat(ctx context.Context, name string, group bool, creator identity.ID, members []identity.ID) (string, error)
	GetChat(ctx context.Context, id string) (*Chat, error)
	ChatsFor(ctx context.Context, member identity.ID, groupsOnly bool) ([]Chat, error)
	Users(ctx context.Context, ids []identity.ID) (map[identity.ID]MemberView, error)
	AddMembers(ctx context.Context, chatID string, ids []identity.ID) error
	RemoveMember(ctx context.Context, chatID string, id identity.ID) error
	LeaveGroup(ctx context.Context, chatID string, leaver, newCreator identity.ID) error
	Rename(ctx context.Context, chatID, name string) error
	DeleteChat(ctx context.Context, chatID string) ([]string, error)
	Messages(ctx context.Context, chatID string, page int) ([]Message, int, error)
}

// Service implements chat and group management. Membership changes are
// announced live through the emitter.
type Service struct {
	repo    Store
	emitter realtime.Emitter
	blobs   blob.Store
	logger  *zap.Logger
	pick    func(n int) int
}

func NewService(repo Store, emitter realtime.Emitter, blobs blob.Store, logger *zap.Logger) *Service {
	return &Service{repo: repo, emitter: emitter, blobs: blobs, logger: logger.Named("chat"), pick: rand.IntN}
}

func (s *Service) load(ctx context.Context, chatID string) (*Chat, error) {
	c, err := s.repo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFoundf("Chat not found")
		}
		return nil, apperr.Wrap(err, "load chat")
	}
	return c, nil
}

func (s *Service) loadGroup(ctx context.Context, chatID string) (*Chat, error) {
	c, err := s.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !c.GroupChat {
		return nil, apperr.Invalid("This is not a group chat")
	}
	return c, nil
}

// NewGroup creates a group owned by creator.
func (s *Service) NewGroup(ctx context.Context, creator identity.ID, req *NewGroupRequest) (string, error) {
	members := lo.Uniq(append(lo.Without(req.Members, creator), creator))
	if len(members) < MinGroupMembers {
		return "", apperr.Invalid(fmt.Sprintf("Group chat must have at least %d members", MinGroupMembers))
	}

	id, err := s.repo.CreateChat(ctx, req.Name, true, creator, members)
	if err != nil {
		return "", apperr.Wrap(err, "create group")
	}

	s.emitter.Deliver(members, realtime.EventAlert, fmt.Sprintf("Welcome to %s group", req.Name))
	s.emitter.Deliver(lo.Without(members, creator), realtime.EventRefetchChats, nil)
	return id, nil
}

func (s *Service) MyChats(ctx context.Context, self identity.ID) ([]ChatView, error) {
	return s.views(ctx, self, false)
}

func (s *Service) MyGroups(ctx context.Context, self identity.ID) ([]ChatView, error) {
	return s.views(ctx, self, true)
}

func (s *Service) views(ctx context.Context, self identity.ID, groupsOnly bool) ([]ChatView, error) {
	chats, err := s.repo.ChatsFor(ctx, self, groupsOnly)
	if err != nil {
		return nil, apperr.Wrap(err, "list chats")
	}
	var ids []identity.ID
	for _, c := range chats {
		ids = append(ids, c.Members...)
	}
	users, err := s.repo.Users(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(err, "load members")
	}

	out := make([]ChatView, 0, len(chats))
	for _, c := range chats {
		others := lo.Without(c.Members, self)
		v := ChatView{ID: c.ID, Name: c.Name, GroupChat: c.GroupChat, Members: others, Creator: c.Creator}
		if c.GroupChat {
			for _, m := range lo.Slice(c.Members, 0, 3) {
				v.Avatar = append(v.Avatar, users[m].Avatar)
			}
		} else if len(others) > 0 {
			other := users[others[0]]
			v.Name = other.Name
			v.Avatar = []string{other.Avatar}
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) AddMembers(ctx context.Context, self identity.ID, req *AddMembersRequest) error {
	c, err := s.loadGroup(ctx, req.ChatID)
	if err != nil {
		return err
	}
	if c.Creator != self {
		return apperr.Forbidden("You are not allowed to add members")
	}

	added := lo.Without(lo.Uniq(req.Members), c.Members...)
	if len(c.Members)+len(added) > MaxGroupMembers {
		return apperr.Invalid("Group members limit reached")
	}
	if len(added) == 0 {
		return nil
	}

	users, err := s.repo.Users(ctx, added)
	if err != nil {
		return apperr.Wrap(err, "load members")
	}
	if missing := lo.Filter(added, func(id identity.ID, _ int) bool { _, ok := users[id]; return !ok }); len(missing) > 0 {
		return apperr.NotFoundf("User %s not found", missing[0])
	}
	if err := s.repo.AddMembers(ctx, c.ID, added); err != nil {
		return apperr.Wrap(err, "add members")
	}

	names := lo.Map(added, func(id identity.ID, _ int) string { return users[id].Name })
	all := append(append([]identity.ID{}, c.Members...), added...)
	s.emitter.Deliver(all, realtime.EventAlert, fmt.Sprintf("%s has been added in the group", strings.Join(names, ", ")))
	s.emitter.Deliver(all, realtime.EventRefetchChats, nil)
	return nil
}

func (s *Service) RemoveMember(ctx context.Context, self identity.ID, req *RemoveMemberRequest) error {
	c, err := s.loadGroup(ctx, req.ChatID)
	if err != nil {
		return err
	}
	if c.Creator != self {
		return apperr.Forbidden("You are not allowed to remove members")
	}
	if !c.HasMember(req.UserID) {
		return apperr.NotFoundf("User not found in this group")
	}
	if len(c.Members) <= MinGroupMembers {
		return apperr.Invalid(fmt.Sprintf("Group must have at least %d members", MinGroupMembers))
	}

	users, err := s.repo.Users(ctx, []identity.ID{req.UserID})
	if err != nil {
		return apperr.Wrap(err, "load member")
	}
	if err := s.repo.RemoveMember(ctx, c.ID, req.UserID); err != nil {
		return apperr.Wrap(err, "remove member")
	}

	remaining := lo.Without(c.Members, req.UserID)
	s.emitter.Deliver(remaining, realtime.EventAlert, realtime.AlertPayload{
		Message: fmt.Sprintf("%s has been removed from the group", users[req.UserID].Name),
		ChatID:  c.ID,
	})
	s.emitter.Deliver(c.Members, realtime.EventRefetchChats, nil)
	return nil
}

// Leave removes self from a group. If self created it, a random remaining
// member takes over.
func (s *Service) Leave(ctx context.Context, self identity.ID, chatID string) error {
	c, err := s.loadGroup(ctx, chatID)
	if err != nil {
		return err
	}
	if !c.HasMember(self) {
		return apperr.Invalid("You are not a member of this group")
	}
	remaining := lo.Without(c.Members, self)
	if len(remaining) < MinGroupMembers {
		return apperr.Invalid(fmt.Sprintf("Group must have at least %d members", MinGroupMembers))
	}

	users, err := s.repo.Users(ctx, []identity.ID{self})
	if err != nil {
		return apperr.Wrap(err, "load member")
	}
	var next identity.ID
	if c.Creator == self {
		next = remaining[s.pick(len(remaining))]
	}
	if err := s.repo.LeaveGroup(ctx, c.ID, self, next); err != nil {
		return apperr.Wrap(err, "leave group")
	}

	s.emitter.Deliver(remaining, realtime.EventAlert, realtime.AlertPayload{
		Message: fmt.Sprintf("User %s has left the group", users[self].Name),
		ChatID:  c.ID,
	})
	return nil
}

type Details struct {
	*Chat
	MemberViews []MemberView `json:"membersDetail,omitempty"`
}

func (s *Service) Details(ctx context.Context, self identity.ID, chatID string, populate bool) (*Details, error) {
	c, err := s.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !c.HasMember(self) {
		return nil, apperr.Forbidden("You are not allowed to access this chat")
	}
	d := &Details{Chat: c}
	if !populate {
		return d, nil
	}
	users, err := s.repo.Users(ctx, c.Members)
	if err != nil {
		return nil, apperr.Wrap(err, "load members")
	}
	for _, m := range c.Members {
		if u, ok := users[m]; ok {
			d.MemberViews = append(d.MemberViews, u)
		}
	}
	return d, nil
}

func (s *Service) Rename(ctx context.Context, self identity.ID, chatID, name string) error {
	c, err := s.loadGroup(ctx, chatID)
	if err != nil {
		return err
	}
	if c.Creator != self {
		return apperr.Forbidden("You are not allowed to rename the group")
	}
	if err := s.repo.Rename(ctx, c.ID, name); err != nil {
		return apperr.Wrap(err, "rename group")
	}
	s.emitter.Deliver(c.Members, realtime.EventAlert, fmt.Sprintf("Group renamed to %s", name))
	s.emitter.Deliver(c.Members, realtime.EventRefetchChats, nil)
	return nil
}

// Delete removes a chat with its messages and their stored files. Groups can
// only be deleted by their creator, one-on-one chats by either member.
func (s *Service) Delete(ctx context.Context, self identity.ID, chatID string) error {
	c, err := s.load(ctx, chatID)
	if err != nil {
		return err
	}
	if c.GroupChat && c.Creator != self {
		return apperr.Forbidden("You are not allowed to delete the group")
	}
	if !c.GroupChat && !c.HasMember(self) {
		return apperr.Forbidden("You are not allowed to delete the chat")
	}

	publicIDs, err := s.repo.DeleteChat(ctx, c.ID)
	if err != nil {
		return apperr.Wrap(err, "delete chat")
	}
	if len(publicIDs) > 0 {
		s.blobs.Delete(context.WithoutCancel(ctx), publicIDs)
	}
	s.emitter.Deliver(c.Members, realtime.EventRefetchChats, nil)
	return nil
}

type MessagePage struct {
	Messages   []Message `json:"messages"`
	TotalPages int       `json:"totalPages"`
}

func (s *Service) Messages(ctx context.Context, self identity.ID, chatID string, page int) (*MessagePage, error) {
	c, err := s.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !c.HasMember(self) {
		return nil, apperr.Forbidden("You are not allowed to access this chat")
	}
	if page < 1 {
		page = 1
	}
	msgs, total, err := s.repo.Messages(ctx, c.ID, page)
	if err != nil {
		return nil, apperr.Wrap(err, "load messages")
	}
	return &MessagePage{Messages: msgs, TotalPages: total}, nil
}
