package conversation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"webhook-chat/internal/history"
	"webhook-chat/internal/store"
	"webhook-chat/internal/webhook"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sentCall struct {
	message string
	cfg     history.ChatConfig
}

type fakeSender struct {
	mu      sync.Mutex
	calls   []sentCall
	reply   string
	err     error
	release chan struct{} // when non-nil, Send blocks until it is closed
}

func (f *fakeSender) Send(_ context.Context, message string, cfg history.ChatConfig) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sentCall{message: message, cfg: cfg})
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	return f.reply, f.err
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const testURL = "https://n8n.example.com/webhook/chat"

func newConfigured(t *testing.T, sender Sender, opts ...Option) (*Controller, *history.Manager) {
	t.Helper()
	m := history.NewManager(store.NewMemoryStore())
	require.NoError(t, m.SaveConfig(history.ChatConfig{WebhookURL: testURL, SessionID: "SESS-TEST00001"}))
	return New(m, sender, opts...), m
}

func TestSendSuccessAppendsUserThenAssistant(t *testing.T) {
	sender := &fakeSender{reply: "Hello from n8n"}
	c, m := newConfigured(t, sender)

	ex, err := c.Send("  hello  ")
	require.NoError(t, err)
	reply := ex.Wait()
	require.NoError(t, ex.Err())

	state := c.Snapshot()
	require.Len(t, state.Messages, 2)
	assert.Equal(t, history.RoleUser, state.Messages[0].Role)
	assert.Equal(t, "hello", state.Messages[0].Content)
	assert.Equal(t, history.RoleAssistant, state.Messages[1].Role)
	assert.Equal(t, "Hello from n8n", state.Messages[1].Content)
	assert.Equal(t, reply, state.Messages[1])
	assert.Equal(t, ex.Request, state.Messages[0])
	assert.False(t, state.Sending)

	// the wire gets the untrimmed text and the persisted session
	require.Equal(t, 1, sender.callCount())
	assert.Equal(t, "  hello  ", sender.calls[0].message)
	assert.Equal(t, "SESS-TEST00001", sender.calls[0].cfg.SessionID)

	persisted, ok := m.LoadMessages()
	require.True(t, ok)
	if diff := cmp.Diff(state.Messages, persisted); diff != "" {
		t.Errorf("persisted history mismatch (-memory +store):\n%s", diff)
	}
}

func TestSendFailureAppendsDiagnostic(t *testing.T) {
	sender := &fakeSender{err: &webhook.TransportError{Err: errors.New("connection refused")}}
	c, _ := newConfigured(t, sender)

	ex, err := c.Send("hi")
	require.NoError(t, err)
	reply := ex.Wait()

	var transErr *webhook.TransportError
	assert.True(t, errors.As(ex.Err(), &transErr))
	assert.Equal(t, history.RoleAssistant, reply.Role)
	assert.Equal(t,
		"Operational Link severed. Network diagnostics required. [webhook unreachable: connection refused]",
		reply.Content)

	state := c.Snapshot()
	assert.Len(t, state.Messages, 2)
	assert.False(t, state.Sending)
}

func TestSendHTTP500ThroughWebhookClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "boom")
	}))
	defer srv.Close()

	m := history.NewManager(store.NewMemoryStore())
	client := webhook.NewClient(webhook.WithHTTPClient(srv.Client()))
	c := New(m, client)
	require.NoError(t, c.UpdateConfig(history.ChatConfig{WebhookURL: srv.URL}))

	ex, err := c.Send("status please")
	require.NoError(t, err)
	reply := ex.Wait()

	assert.Contains(t, reply.Content, "500")
	assert.Contains(t, reply.Content, "Operational Link severed")
	state := c.Snapshot()
	assert.Len(t, state.Messages, 2)
	assert.False(t, state.Sending)

	srv.Client().CloseIdleConnections()
}

func TestSendEmptyIsNoop(t *testing.T) {
	sender := &fakeSender{reply: "x"}
	c, _ := newConfigured(t, sender)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := c.Send(text)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}

	state := c.Snapshot()
	assert.Empty(t, state.Messages)
	assert.False(t, state.Sending)
	assert.Zero(t, sender.callCount())
}

func TestSendWhileSendingIsRejected(t *testing.T) {
	sender := &fakeSender{reply: "done", release: make(chan struct{})}
	c, _ := newConfigured(t, sender)

	ex, err := c.Send("first")
	require.NoError(t, err)

	_, err = c.Send("second")
	assert.ErrorIs(t, err, ErrBusy)

	state := c.Snapshot()
	assert.True(t, state.Sending)
	assert.Len(t, state.Messages, 1)

	close(sender.release)
	ex.Wait()

	assert.Equal(t, 1, sender.callCount())
	assert.Len(t, c.Snapshot().Messages, 2)
}

func TestHangingWebhookKeepsSending(t *testing.T) {
	sender := &fakeSender{reply: "late", release: make(chan struct{})}
	c, _ := newConfigured(t, sender)

	ex, err := c.Send("anyone there?")
	require.NoError(t, err)

	select {
	case <-ex.Done():
		t.Fatal("exchange finished while the webhook was still hanging")
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, c.Snapshot().Sending)
	assert.ErrorIs(t, c.ClearConversation(), ErrBusy)

	// the only way out is the webhook answering
	close(sender.release)
	<-ex.Done()
	assert.False(t, c.Snapshot().Sending)
}

func TestSendWithoutURLSignalsConfigRequiredOnce(t *testing.T) {
	sender := &fakeSender{reply: "x"}
	c := New(history.NewManager(store.NewMemoryStore()), sender)

	var required int
	cancel := c.Subscribe(func(ev Event) {
		if ev.Kind == EventConfigRequired {
			required++
		}
	})
	defer cancel()

	_, err := c.Send("hello")
	assert.ErrorIs(t, err, ErrConfigRequired)
	assert.Equal(t, 1, required)
	assert.Empty(t, c.Snapshot().Messages)
	assert.Zero(t, sender.callCount())
}

func TestSendClearsDraft(t *testing.T) {
	sender := &fakeSender{reply: "x"}
	c, _ := newConfigured(t, sender)

	c.SetDraft("hello")
	assert.Equal(t, "hello", c.Snapshot().Draft)

	_, err := c.Send("   ")
	require.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, "hello", c.Snapshot().Draft)

	ex, err := c.Send("hello")
	require.NoError(t, err)
	ex.Wait()
	assert.Empty(t, c.Snapshot().Draft)
}

func TestEventsOnSend(t *testing.T) {
	sender := &fakeSender{reply: "x"}
	c, _ := newConfigured(t, sender)

	var mu sync.Mutex
	counts := map[EventKind]int{}
	cancel := c.Subscribe(func(ev Event) {
		mu.Lock()
		counts[ev.Kind]++
		mu.Unlock()
	})

	ex, err := c.Send("hi")
	require.NoError(t, err)
	ex.Wait()
	cancel()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, counts[EventMessagesChanged])
	assert.Equal(t, 2, counts[EventLoadingChanged])

	// cancelled listeners stop receiving
	require.NoError(t, c.ClearConversation())
	assert.Equal(t, 2, counts[EventMessagesChanged])
}

func TestMessageStampsAreMonotonic(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	var mu sync.Mutex
	ticks := []time.Time{base, base, base.Add(-time.Second), base.Add(-time.Second)}
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return now
	}

	sender := &fakeSender{reply: "x"}
	c, _ := newConfigured(t, sender, WithClock(clock))

	for _, text := range []string{"one", "two"} {
		ex, err := c.Send(text)
		require.NoError(t, err)
		ex.Wait()
	}

	msgs := c.Snapshot().Messages
	require.Len(t, msgs, 4)
	ids := map[string]bool{}
	for i, msg := range msgs {
		assert.False(t, ids[msg.ID], "duplicate id %s", msg.ID)
		ids[msg.ID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, msg.Timestamp, msgs[i-1].Timestamp)
		}
	}
	assert.Equal(t, "1700000000000", msgs[0].ID)
	assert.Equal(t, "1700000000001", msgs[1].ID)
}

func TestEveryUserMessageGetsOneReply(t *testing.T) {
	outcomes := []*fakeSender{
		{reply: "ok"},
		{err: &webhook.HTTPError{StatusCode: 502}},
		{err: &webhook.ParseError{Err: errors.New("invalid character")}},
		{err: &webhook.TransportError{Err: errors.New("no such host")}},
	}

	for _, sender := range outcomes {
		c, _ := newConfigured(t, sender)
		ex, err := c.Send("ping")
		require.NoError(t, err)
		ex.Wait()

		msgs := c.Snapshot().Messages
		require.Len(t, msgs, 2)
		assert.Equal(t, history.RoleUser, msgs[0].Role)
		assert.Equal(t, history.RoleAssistant, msgs[1].Role)
		assert.NotEmpty(t, msgs[1].Content)
	}
}

func TestFreshInstallCreatesAndPersistsSession(t *testing.T) {
	s := store.NewMemoryStore()
	m := history.NewManager(s)

	c := New(m, &fakeSender{})
	assert.True(t, c.NeedsConfiguration())
	sessionID := c.Snapshot().Config.SessionID
	assert.Regexp(t, `^SESS-[0-9A-Z]{9}$`, sessionID)

	// a restart keeps the session even before a URL is configured
	c2 := New(history.NewManager(s), &fakeSender{})
	assert.Equal(t, sessionID, c2.Snapshot().Config.SessionID)
}

func TestUpdateConfigKeepsSession(t *testing.T) {
	s := store.NewMemoryStore()
	c := New(history.NewManager(s), &fakeSender{})
	sessionID := c.Snapshot().Config.SessionID

	require.NoError(t, c.UpdateConfig(history.ChatConfig{WebhookURL: testURL}))
	assert.False(t, c.NeedsConfiguration())

	reloaded, ok := history.NewManager(s).LoadConfig()
	require.True(t, ok)
	assert.Equal(t, history.ChatConfig{WebhookURL: testURL, SessionID: sessionID}, reloaded)

	// an explicit session id is honoured
	require.NoError(t, c.UpdateConfig(history.ChatConfig{WebhookURL: testURL, SessionID: "SESS-EXPLICIT1"}))
	assert.Equal(t, "SESS-EXPLICIT1", c.Snapshot().Config.SessionID)
}

func TestClearConversation(t *testing.T) {
	sender := &fakeSender{reply: "x"}
	c, m := newConfigured(t, sender)

	ex, err := c.Send("hello")
	require.NoError(t, err)
	ex.Wait()
	require.Len(t, c.Snapshot().Messages, 2)

	require.NoError(t, c.ClearConversation())
	assert.Empty(t, c.Snapshot().Messages)

	reloaded := New(m, sender)
	assert.Empty(t, reloaded.Snapshot().Messages)
}

func TestHistorySurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewFileStore(dir)
	require.NoError(t, err)
	m := history.NewManager(s)
	require.NoError(t, m.SaveConfig(history.ChatConfig{WebhookURL: testURL, SessionID: "SESS-RESTART01"}))

	c := New(m, &fakeSender{reply: "kept"})
	ex, err := c.Send("remember me")
	require.NoError(t, err)
	ex.Wait()
	before := c.Snapshot()

	s2, err := store.NewFileStore(dir)
	require.NoError(t, err)
	after := New(history.NewManager(s2), &fakeSender{}).Snapshot()

	if diff := cmp.Diff(before.Messages, after.Messages); diff != "" {
		t.Errorf("history mismatch after restart (-before +after):\n%s", diff)
	}
	assert.Equal(t, before.Config, after.Config)
}

func TestCorruptHistoryStartsEmpty(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.Save(history.KeyMessages, []byte("{{{")))
	require.NoError(t, s.Save(history.KeyConfig, []byte("nope")))

	c := New(history.NewManager(s), &fakeSender{})
	state := c.Snapshot()
	assert.Empty(t, state.Messages)
	assert.NotEmpty(t, state.Config.SessionID)
	assert.True(t, c.NeedsConfiguration())
}
