package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMessenger fails the first failures calls, then succeeds.
type fakeMessenger struct {
	mu       sync.Mutex
	failures int
	calls    []sent
}

type sent struct {
	to   string
	body string
}

func (m *fakeMessenger) SendMessage(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sent{to: to, body: body})
	if len(m.calls) <= m.failures {
		return errors.New("twilio unavailable")
	}
	return nil
}

type fakeOps struct {
	channel  string
	messages []string
}

func (o *fakeOps) PostMessage(_ context.Context, channel, message string) error {
	o.channel = channel
	o.messages = append(o.messages, message)
	return nil
}

type recordedSleeps struct {
	waits []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newTestDispatcher(t *testing.T, m *fakeMessenger, ops *fakeOps, sleeps *recordedSleeps) *Dispatcher {
	t.Helper()
	opts := []DispatcherOption{WithSleep(sleeps.sleep)}
	if ops != nil {
		opts = append(opts, WithOps(ops))
	}
	d, err := NewDispatcher(m, Options{}, opts...)
	require.NoError(t, err)
	return d
}

func TestSend_RetriesThenSucceeds(t *testing.T) {
	m := &fakeMessenger{failures: 2}
	sleeps := &recordedSleeps{}
	ops := &fakeOps{}
	d := newTestDispatcher(t, m, ops, sleeps)

	assert.True(t, d.Send(context.Background(), "+15551234567", "hello"))
	assert.Len(t, m.calls, 3)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sleeps.waits)
	assert.Empty(t, ops.messages)
}

func TestSend_AlwaysFails(t *testing.T) {
	m := &fakeMessenger{failures: 100}
	sleeps := &recordedSleeps{}
	ops := &fakeOps{}
	d := newTestDispatcher(t, m, ops, sleeps)

	assert.False(t, d.Send(context.Background(), "+15551234567", "hello"))
	assert.Len(t, m.calls, 3)
	assert.Len(t, sleeps.waits, 2)

	require.Len(t, ops.messages, 1)
	assert.Equal(t, "#foodbridge-ops", ops.channel)
	assert.Contains(t, ops.messages[0], "failed after 3 attempts")
	assert.NotContains(t, ops.messages[0], "15551234567")
}

func TestSend_FirstAttemptSucceeds(t *testing.T) {
	m := &fakeMessenger{}
	sleeps := &recordedSleeps{}
	d := newTestDispatcher(t, m, nil, sleeps)

	assert.True(t, d.Send(context.Background(), "+15551234567", "hello"))
	assert.Len(t, m.calls, 1)
	assert.Empty(t, sleeps.waits)
}

func TestSend_CustomOptions(t *testing.T) {
	m := &fakeMessenger{failures: 100}
	sleeps := &recordedSleeps{}
	d, err := NewDispatcher(m, Options{MaxAttempts: 5, RetryDelay: 10 * time.Millisecond}, WithSleep(sleeps.sleep))
	require.NoError(t, err)

	assert.False(t, d.Send(context.Background(), "+1555", "x"))
	assert.Len(t, m.calls, 5)
	assert.Equal(t, 10*time.Millisecond, sleeps.waits[0])
}

func TestNewDispatcher_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"negative attempts", Options{MaxAttempts: -1}},
		{"negative delay", Options{RetryDelay: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDispatcher(&fakeMessenger{}, tt.opts)
			assert.Error(t, err)
			assert.Nil(t, d)
		})
	}
}

func TestSend_CanceledDuringBackoff(t *testing.T) {
	m := &fakeMessenger{failures: 100}
	d, err := NewDispatcher(m, Options{RetryDelay: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	assert.False(t, d.Send(ctx, "+1555", "x"))
	assert.Len(t, m.calls, 1)
}

func TestSend_NormalizesAndTrims(t *testing.T) {
	m := &fakeMessenger{}
	d := newTestDispatcher(t, m, nil, &recordedSleeps{})

	require.True(t, d.Send(context.Background(), "919876543210", "\n   hello there  \n"))
	assert.Equal(t, sent{to: "+919876543210", body: "hello there"}, m.calls[0])
}

func TestSend_EmptyPhone(t *testing.T) {
	m := &fakeMessenger{}
	d := newTestDispatcher(t, m, nil, &recordedSleeps{})

	assert.False(t, d.Send(context.Background(), "  ", "hello"))
	assert.Empty(t, m.calls)
}

func TestSend_TruncatesLongMessages(t *testing.T) {
	m := &fakeMessenger{}
	d := newTestDispatcher(t, m, nil, &recordedSleeps{})

	require.True(t, d.Send(context.Background(), "+1555", strings.Repeat("a", 2000)))
	body := m.calls[0].body
	assert.Equal(t, MaxMessageLength, utf8.RuneCountInString(body))
	assert.True(t, strings.HasSuffix(body, "..."))
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"919876543210", "+919876543210"},
		{"+919876543210", "+919876543210"},
		{"00919876543210", "+919876543210"},
		{" 15551234567 ", "+15551234567"},
		{"", ""},
		{"000", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantLen int
		cut     bool
	}{
		{name: "short", in: "hi", wantLen: 2},
		{name: "exactly max", in: strings.Repeat("x", MaxMessageLength), wantLen: MaxMessageLength},
		{name: "one over", in: strings.Repeat("x", MaxMessageLength+1), wantLen: MaxMessageLength, cut: true},
		{name: "multibyte", in: strings.Repeat("é", 1700), wantLen: MaxMessageLength, cut: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in)
			assert.Equal(t, tt.wantLen, utf8.RuneCountInString(got))
			assert.Equal(t, tt.cut, strings.HasSuffix(got, "..."))
			assert.True(t, utf8.ValidString(got))
		})
	}
}
