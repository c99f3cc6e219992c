package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/db"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tokenMap map[identity.ID]string

func (m tokenMap) PushToken(_ context.Context, id identity.ID) (string, error) {
	tok, ok := m[id]
	if !ok {
		return "", db.ErrNotFound
	}
	if tok == "broken" {
		return "", errors.New("lookup failed")
	}
	return tok, nil
}

type push struct{ token, title, body string }

type recordingPusher struct {
	mu     sync.Mutex
	pushes []push
	fail   map[string]bool

	inFlight, peak atomic.Int32
	delay          time.Duration
}

func (p *recordingPusher) Push(_ context.Context, token, title, body string) error {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(p.delay)

	if p.fail[token] {
		return errors.New("unregistered token")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, push{token, title, body})
	return nil
}

func (p *recordingPusher) tokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.pushes))
	for i, ps := range p.pushes {
		out[i] = ps.token
	}
	return out
}

func TestNotify_TitleAndBody(t *testing.T) {
	req := require.New(t)
	pusher := &recordingPusher{}
	d := NewDispatcher(tokenMap{"u2": "tok-2"}, pusher, time.Second, 2, zap.NewNop())

	d.Notify(context.Background(), "u2", Note{SenderName: "Alice", Content: "hello"})

	req.Equal([]push{{"tok-2", "New Message from Alice", "hello"}}, pusher.pushes)
}

func TestNotify_NoTokenOrNoProfileIsNoop(t *testing.T) {
	req := require.New(t)
	pusher := &recordingPusher{}
	d := NewDispatcher(tokenMap{"empty": ""}, pusher, time.Second, 2, zap.NewNop())

	d.Notify(context.Background(), "empty", Note{SenderName: "A"})
	d.Notify(context.Background(), "ghost", Note{SenderName: "A"})

	req.Empty(pusher.pushes)
}

func TestNotifyAll_IsolatesFailures(t *testing.T) {
	req := require.New(t)
	pusher := &recordingPusher{fail: map[string]bool{"tok-bad": true}}
	tokens := tokenMap{"a": "tok-a", "bad": "tok-bad", "lookup": "broken", "c": "tok-c"}
	d := NewDispatcher(tokens, pusher, time.Second, 4, zap.NewNop())

	d.NotifyAll(context.Background(), []identity.ID{"a", "bad", "lookup", "c", "ghost"}, Note{SenderName: "S", Content: "x"})

	req.ElementsMatch([]string{"tok-a", "tok-c"}, pusher.tokens())
}

func TestNotifyAll_BoundsConcurrency(t *testing.T) {
	req := require.New(t)
	pusher := &recordingPusher{delay: 20 * time.Millisecond}
	tokens := tokenMap{}
	var ids []identity.ID
	for _, id := range []identity.ID{"1", "2", "3", "4", "5", "6", "7", "8"} {
		tokens[id] = "tok-" + string(id)
		ids = append(ids, id)
	}
	d := NewDispatcher(tokens, pusher, time.Second, 2, zap.NewNop())

	d.NotifyAll(context.Background(), ids, Note{SenderName: "S"})

	req.Len(pusher.tokens(), 8)
	req.LessOrEqual(pusher.peak.Load(), int32(2))
}
