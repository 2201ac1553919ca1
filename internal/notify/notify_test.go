package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadchat/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleLead() domain.LeadNotification {
	return domain.LeadNotification{
		SessionID:   "s-1",
		Theme:       domain.ThemeSatisfaction,
		Name:        "Rudi",
		Email:       "rudi@test.com",
		Phone:       "081234567890",
		Need:        "website toko online <dengan> katalog",
		Reason:      domain.CloseReasonUserEnded,
		SubmittedAt: time.Date(2026, 3, 2, 3, 5, 0, 0, time.UTC),
	}
}

type captured struct {
	mu   sync.Mutex
	envs []envelope
	err  error
}

func (c *captured) send(_ context.Context, envs ...envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, envs...)
	return c.err
}

func newTestMailSink(t *testing.T, sent *captured) *MailSink {
	t.Helper()
	s, err := NewMailSink(MailConfig{
		Host:        "smtp.example.com",
		Port:        465,
		Username:    "user",
		Password:    "pass",
		FromAddress: "noreply@example.com",
		AdminEmail:  "admin@example.com",
	})
	require.NoError(t, err)
	s.send = sent.send
	s.now = func() time.Time { return time.Date(2026, 3, 2, 3, 5, 0, 0, time.UTC) }
	return s
}

func TestMailSinkSendsAdminAndThankYou(t *testing.T) {
	sent := &captured{}
	s := newTestMailSink(t, sent)

	require.NoError(t, s.Notify(context.Background(), sampleLead()))
	require.Len(t, sent.envs, 2)

	admin := sent.envs[0]
	require.Equal(t, "admin@example.com", admin.to)
	require.Equal(t, "rudi@test.com", admin.replyTo)
	require.Contains(t, admin.subject, "Rudi")
	require.Contains(t, admin.html, "Satisfaction Mode")
	require.Contains(t, admin.html, "&lt;dengan&gt;")
	require.Contains(t, admin.html, "Senin, 2 Maret 2026 10.05")
	require.NotContains(t, admin.html, "ZgotmplZ")

	thanks := sent.envs[1]
	require.Equal(t, "rudi@test.com", thanks.to)
	require.Contains(t, thanks.html, "Terima Kasih, Rudi!")
}

func TestMailSinkSkipsThankYouWithoutEmail(t *testing.T) {
	sent := &captured{}
	s := newTestMailSink(t, sent)
	lead := sampleLead()
	lead.Email = ""

	require.NoError(t, s.Notify(context.Background(), lead))
	require.Len(t, sent.envs, 1)
}

func TestMailSinkWrapsSendError(t *testing.T) {
	sent := &captured{err: errors.New("535 auth failed")}
	s := newTestMailSink(t, sent)
	err := s.Notify(context.Background(), sampleLead())
	require.ErrorContains(t, err, "send lead mail")
	require.ErrorContains(t, err, "535 auth failed")
}

func TestMailSinkStrategyCall(t *testing.T) {
	sent := &captured{}
	s := newTestMailSink(t, sent)

	require.NoError(t, s.SendStrategyCall(context.Background(), domain.StrategyCallRequest{
		PhoneNumber:  "81234567890",
		SelectedTime: "morning",
		TimeLabel:    "Pagi (09.00 - 12.00)",
	}))
	require.Len(t, sent.envs, 1)
	require.Equal(t, "admin@example.com", sent.envs[0].to)
	require.Contains(t, sent.envs[0].html, "+62 81234567890")
	require.Contains(t, sent.envs[0].html, "Pagi (09.00 - 12.00)")
}

func TestBuildMsgWritesHeaders(t *testing.T) {
	s := newTestMailSink(t, &captured{})
	m, err := s.buildMsg(envelope{fromName: "BAROD.Y Website", to: "rudi@test.com", subject: "hi", html: "<p>hi</p>"})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "rudi@test.com")
	require.Contains(t, buf.String(), "noreply@example.com")

	_, err = s.buildMsg(envelope{to: "not an address"})
	require.Error(t, err)
}

type stubSink struct {
	name  string
	err   error
	calls int
	mu    sync.Mutex
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Notify(context.Context, domain.LeadNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func TestMultiCallsEverySinkAndJoinsErrors(t *testing.T) {
	ok := &stubSink{name: "ok"}
	bad := &stubSink{name: "bad", err: errors.New("broker down")}
	m := NewMulti(testLogger(), ok, bad)

	err := m.Notify(context.Background(), sampleLead())
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "bad: broker down"))
	require.Equal(t, 1, ok.calls)
	require.Equal(t, 1, bad.calls)

	require.NoError(t, NewMulti(testLogger(), ok).Notify(context.Background(), sampleLead()))
}

type fakePublisher struct {
	got []domain.LeadNotification
}

func (p *fakePublisher) PublishLead(_ context.Context, n domain.LeadNotification) error {
	p.got = append(p.got, n)
	return nil
}

func TestMQTTSinkPublishes(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, NewMQTTSink(pub).Notify(context.Background(), sampleLead()))
	require.Len(t, pub.got, 1)
	require.Equal(t, "s-1", pub.got[0].SessionID)
}

func TestLogSinkNeverFails(t *testing.T) {
	require.NoError(t, NewLogSink(testLogger()).Notify(context.Background(), sampleLead()))
}
