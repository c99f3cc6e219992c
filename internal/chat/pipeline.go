package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/apperr"
	"github.com/ZUXXSU/chathubserver/internal/blob"
	"github.com/ZUXXSU/chathubserver/internal/db"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/notify"
	"github.com/ZUXXSU/chathubserver/internal/realtime"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// State is how far a send got.
type State int

const (
	StateReceived State = iota
	StateFannedOut
	StatePersisted
	StatePersistFailed
	StateNotified
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateFannedOut:
		return "fanned_out"
	case StatePersisted:
		return "persisted"
	case StatePersistFailed:
		return "persist_failed"
	case StateNotified:
		return "notified"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type MessageStore interface {
	SaveMessage(ctx context.Context, m *Message) error
	GetChat(ctx context.Context, id string) (*Chat, error)
}

type Presence interface {
	IsConnected(id identity.ID) bool
}

type Notifier interface {
	NotifyAll(ctx context.Context, ids []identity.ID, note notify.Note)
}

type SendRequest struct {
	ChatID  string
	Members []identity.ID
	Content string
}

// Outcome describes a finished send. Notified is closed once every push
// attempt has completed, or right away when none was scheduled.
type Outcome struct {
	State    State
	Message  TransientMessage
	Stored   *Message
	Reached  int
	Offline  []identity.ID
	Notified <-chan struct{}
}

// Pipeline delivers a message to connected members first, then stores it,
// then pushes to members who are offline.
type Pipeline struct {
	fanout       realtime.Emitter
	presence     Presence
	store        MessageStore
	blobs        blob.Store
	notifier     Notifier
	storeTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	wg sync.WaitGroup
}

func NewPipeline(fanout realtime.Emitter, presence Presence, store MessageStore, blobs blob.Store, notifier Notifier, storeTimeout time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		fanout:       fanout,
		presence:     presence,
		store:        store,
		blobs:        blobs,
		notifier:     notifier,
		storeTimeout: storeTimeout,
		logger:       logger.Named("pipeline"),
		now:          time.Now,
	}
}

// HandleMessage serves new-message events from the socket layer.
func (p *Pipeline) HandleMessage(ctx context.Context, from realtime.Sender, payload realtime.NewMessagePayload) error {
	_, err := p.Send(ctx, from, SendRequest{
		ChatID:  payload.ChatID,
		Members: payload.Members,
		Content: payload.Message,
	})
	return err
}

// Send runs one text message through the pipeline. Only the chat id and the
// member list are checked; content is relayed as is, even when empty.
// Membership is taken from the request as is. A storage failure is logged and reported through
// Outcome.State only.
func (p *Pipeline) Send(ctx context.Context, from realtime.Sender, req SendRequest) (Outcome, error) {
	out := Outcome{State: StateReceived}
	switch {
	case req.ChatID == "":
		return out, apperr.Invalid("chatId is required")
	case len(req.Members) == 0:
		return out, apperr.Invalid("members are required")
	}

	sender := SenderRef{ID: from.ID, Name: from.Name}
	out.Message = TransientMessage{
		ID:        uuid.NewString(),
		Content:   req.Content,
		Sender:    sender,
		ChatID:    req.ChatID,
		CreatedAt: p.now().UTC().Format(time.RFC3339Nano),
	}
	out.Reached = p.emit(req.ChatID, req.Members, out.Message)
	out.State = StateFannedOut

	stored := &Message{ChatID: req.ChatID, Content: req.Content, Sender: sender}
	if err := p.persist(ctx, stored); err != nil {
		p.logger.Error("persist message",
			zap.String("chat", req.ChatID),
			zap.String("sender", string(from.ID)),
			zap.String("transient_id", out.Message.ID),
			zap.Error(err),
		)
		out.State = StatePersistFailed
		out.Notified = closed()
		return out, nil
	}
	out.State = StatePersisted
	out.Stored = stored

	out.Offline = p.offline(from.ID, req.Members)
	out.Notified = p.notifyLater(ctx, out.Offline, notify.Note{SenderName: from.Name, Content: req.Content})
	return out, nil
}

// SendWithAttachments is the upload path. The message is stored before it is
// delivered because clients need its durable id.
func (p *Pipeline) SendWithAttachments(ctx context.Context, from realtime.Sender, chatID string, files []blob.File) (*Message, error) {
	if len(files) == 0 {
		return nil, apperr.Invalid("Please Upload Attachments")
	}
	if len(files) > MaxAttachments {
		return nil, apperr.Invalid(fmt.Sprintf("Files Can't be more than %d", MaxAttachments))
	}

	chat, err := p.store.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFoundf("Chat not found")
		}
		return nil, apperr.Wrap(err, "load chat")
	}
	if !chat.HasMember(from.ID) {
		return nil, apperr.Forbidden("You are not a member of this chat")
	}

	objs, err := p.blobs.Upload(ctx, files)
	if err != nil {
		return nil, apperr.Wrap(err, "upload attachments")
	}

	sender := SenderRef{ID: from.ID, Name: from.Name}
	stored := &Message{ChatID: chatID, Sender: sender, Attachments: objs}
	if err := p.persist(ctx, stored); err != nil {
		p.blobs.Delete(context.WithoutCancel(ctx), lo.Map(objs, func(o blob.Object, _ int) string { return o.PublicID }))
		return nil, apperr.Wrap(err, "save message")
	}

	p.emit(chatID, chat.Members, TransientMessage{
		ID:          stored.ID,
		Sender:      sender,
		ChatID:      chatID,
		Attachments: objs,
		CreatedAt:   stored.CreatedAt.UTC().Format(time.RFC3339Nano),
	})

	body := "Sent an attachment"
	if len(objs) > 1 {
		body = fmt.Sprintf("Sent %d attachments", len(objs))
	}
	p.notifyLater(ctx, p.offline(from.ID, chat.Members), notify.Note{SenderName: from.Name, Content: body})
	return stored, nil
}

// Wait blocks until every scheduled notification task has finished.
func (p *Pipeline) Wait() { p.wg.Wait() }

func (p *Pipeline) emit(chatID string, members []identity.ID, msg TransientMessage) int {
	reached := p.fanout.Deliver(members, realtime.EventNewMessage, NewMessageEvent{ChatID: chatID, Message: msg})
	p.fanout.Deliver(members, realtime.EventNewMessageAlert, realtime.ChatRef{ChatID: chatID})
	return reached
}

// persist outlives the caller's context, bounded by the store timeout.
func (p *Pipeline) persist(ctx context.Context, m *Message) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.storeTimeout)
	defer cancel()
	return p.store.SaveMessage(ctx, m)
}

func (p *Pipeline) offline(sender identity.ID, members []identity.ID) []identity.ID {
	return lo.Filter(lo.Without(lo.Uniq(members), sender), func(id identity.ID, _ int) bool {
		return !p.presence.IsConnected(id)
	})
}

func (p *Pipeline) notifyLater(ctx context.Context, ids []identity.ID, note notify.Note) <-chan struct{} {
	if len(ids) == 0 {
		return closed()
	}
	done := make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(done)
		p.notifier.NotifyAll(context.WithoutCancel(ctx), ids, note)
		p.logger.Debug("offline members notified",
			zap.Stringer("state", StateNotified),
			zap.Int("recipients", len(ids)),
		)
	}()
	return done
}

func closed() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
