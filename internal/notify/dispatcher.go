// Package notify sends push notifications to members who are not connected.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/db"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"go.uber.org/zap"
)

// Note is the content of one push.
type Note struct {
	SenderName string
	Content    string
}

func (n Note) Title() string { return "New Message from " + n.SenderName }

type Pusher interface {
	Push(ctx context.Context, token, title, body string) error
}

type TokenLookup interface {
	PushToken(ctx context.Context, id identity.ID) (string, error)
}

type Dispatcher struct {
	tokens      TokenLookup
	pusher      Pusher
	timeout     time.Duration
	concurrency int
	logger      *zap.Logger
}

func NewDispatcher(tokens TokenLookup, pusher Pusher, timeout time.Duration, concurrency int, logger *zap.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		tokens:      tokens,
		pusher:      pusher,
		timeout:     timeout,
		concurrency: concurrency,
		logger:      logger.Named("notify"),
	}
}

// Notify pushes note to one recipient. Users without a stored token are
// skipped. Failures are logged, never returned.
func (d *Dispatcher) Notify(ctx context.Context, id identity.ID, note Note) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	token, err := d.tokens.PushToken(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			d.logger.Debug("no profile for push", zap.String("identity", string(id)))
			return
		}
		d.logger.Warn("load push token", zap.String("identity", string(id)), zap.Error(err))
		return
	}
	if token == "" {
		return
	}

	if err := d.pusher.Push(ctx, token, note.Title(), note.Content); err != nil {
		d.logger.Warn("push failed", zap.String("identity", string(id)), zap.Error(err))
		return
	}
	d.logger.Debug("push sent", zap.String("identity", string(id)))
}

// NotifyAll notifies every id with bounded concurrency and returns once all
// attempts are done. One failure never affects the others.
func (d *Dispatcher) NotifyAll(ctx context.Context, ids []identity.ID, note Note) {
	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id identity.ID) {
			defer func() {
				<-sem
				wg.Done()
			}()
			d.Notify(ctx, id, note)
		}(id)
	}
	wg.Wait()
}
