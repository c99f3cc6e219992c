package admin

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/analytics"
	"github.com/ZUXXSU/chathubserver/internal/apperr"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/user"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Store is satisfied by *Repository.
type Store interface {
	Users(ctx context.Context) ([]UserRow, error)
	Chats(ctx context.Context) ([]ChatRow, error)
	Messages(ctx context.Context) ([]MessageRow, error)
	Counts(ctx context.Context) (Counts, error)
	MessageTimes(ctx context.Context, since time.Time) ([]time.Time, error)
}

type Visitors interface {
	Anonymous(ctx context.Context) ([]analytics.Record, error)
}

type Accounts interface {
	GetByID(ctx context.Context, id identity.ID) (*user.User, error)
	SetAdmin(ctx context.Context, id identity.ID, admin bool) error
}

type TokenIssuer interface {
	Issue(p identity.Principal) (string, error)
}

type Service struct {
	store    Store
	visitors Visitors
	accounts Accounts
	tokens   TokenIssuer
	secret   []byte
	now      func() time.Time
	logger   *zap.Logger
}

func NewService(store Store, visitors Visitors, accounts Accounts, tokens TokenIssuer, secretKey string, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		visitors: visitors,
		accounts: accounts,
		tokens:   tokens,
		secret:   []byte(secretKey),
		now:      time.Now,
		logger:   logger.Named("admin"),
	}
}

// Verify elevates self to admin when key matches the configured secret and
// returns a token carrying the admin claim.
func (s *Service) Verify(ctx context.Context, self identity.ID, key string) (string, error) {
	if len(s.secret) == 0 || subtle.ConstantTimeCompare([]byte(key), s.secret) != 1 {
		s.logger.Warn("admin key rejected", zap.String("user", string(self)))
		return "", apperr.Unauthenticated("Invalid Admin Key")
	}
	u, err := s.accounts.GetByID(ctx, self)
	if err != nil {
		return "", apperr.Wrap(err, "load admin user")
	}
	if err := s.accounts.SetAdmin(ctx, self, true); err != nil {
		return "", apperr.Wrap(err, "grant admin")
	}
	token, err := s.tokens.Issue(identity.Principal{ID: u.ID, Name: u.Name, Admin: true})
	if err != nil {
		return "", apperr.Wrap(err, "issue admin token")
	}
	s.logger.Info("admin verified", zap.String("user", string(self)))
	return token, nil
}

func (s *Service) Users(ctx context.Context) ([]UserRow, error) {
	rows, err := s.store.Users(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "list users")
	}
	return rows, nil
}

// Visitors lists devices that reported analytics without logging in.
func (s *Service) Visitors(ctx context.Context) ([]VisitorRow, error) {
	records, err := s.visitors.Anonymous(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "list visitors")
	}
	return lo.Map(records, func(r analytics.Record, _ int) VisitorRow {
		return VisitorRow{
			ID:        r.ID,
			Name:      r.DeviceModel,
			Username:  r.UniqueIdentifier,
			OS:        r.OS,
			Network:   r.NetworkType,
			IP:        r.IPAddress,
			CreatedAt: r.Timestamp,
		}
	}), nil
}

func (s *Service) Chats(ctx context.Context) ([]ChatRow, error) {
	rows, err := s.store.Chats(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "list chats")
	}
	return rows, nil
}

func (s *Service) Messages(ctx context.Context) ([]MessageRow, error) {
	rows, err := s.store.Messages(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "list messages")
	}
	return rows, nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "count rows")
	}
	now := s.now()
	times, err := s.store.MessageTimes(ctx, now.Add(-ChartDays*24*time.Hour))
	if err != nil {
		return nil, apperr.Wrap(err, "message times")
	}
	return &Stats{Counts: counts, MessagesChart: messagesChart(now, times)}, nil
}

// messagesChart buckets times by whole days before now. Slot ChartDays-1 is
// the last 24 hours.
func messagesChart(now time.Time, times []time.Time) [ChartDays]int {
	var chart [ChartDays]int
	for _, t := range times {
		age := now.Sub(t)
		if age < 0 {
			age = 0
		}
		days := int(age / (24 * time.Hour))
		if days < ChartDays {
			chart[ChartDays-1-days]++
		}
	}
	return chart
}
