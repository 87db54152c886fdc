package email

import (
	"context"
	"errors"
	"net/smtp"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharon232323/bidmate/internal/config"
)

type stubSender struct {
	err   error
	calls int
}

func (s *stubSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	s.calls++
	return s.err
}

func TestKindFromSubject(t *testing.T) {
	cases := map[string]string{
		"Your offer on Lamp was accepted": KindOfferAccepted,
		"Your bid on Lamp was declined":   KindOfferRejected,
		"New bid on Lamp":                 KindOfferPlaced,
		"New offer on Textbook":           KindOfferPlaced,
		"Hello":                           KindUnknown,

		"New contact request from Accepted Name": KindContact,
	}
	for subject, want := range cases {
		assert.Equal(t, want, KindFromSubject(subject), subject)
	}
}

func TestMockEmailKey(t *testing.T) {
	assert.Equal(t, "mockemail:b@x.com:offer_accepted", MockEmailKey("b@x.com", KindOfferAccepted))
}

func TestCompositeEmailSender_CallsAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &stubSender{}
	bad := &stubSender{err: boom}
	cs := NewCompositeEmailSender(bad, nil, ok)

	err := cs.Send(context.Background(), []string{"a@x.com"}, "s", []byte("m"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, bad.calls)

	assert.Error(t, NewCompositeEmailSender().Send(context.Background(), nil, "s", nil))
}

func TestFileEmailSender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "emails.log")
	s, err := NewFileEmailSender(path)
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), []string{"b@x.com"}, "New bid on Lamp", []byte("body one")))
	require.NoError(t, s.Send(context.Background(), []string{"b@x.com"}, "New bid on Lamp", []byte("body two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "body one")
	assert.Contains(t, string(data), "body two")

	_, err = NewFileEmailSender("  ")
	assert.Error(t, err)
}

func TestNewSMTPSender_FallsBackToLogging(t *testing.T) {
	s := NewSMTPSender(&config.Config{SmtpFromAddress: "noreply@bidmate.test"})
	_, ok := s.(*LoggingSender)
	assert.True(t, ok)
	assert.NoError(t, s.Send(context.Background(), []string{"b@x.com"}, "New bid on Lamp", []byte("m")))
}

func TestSMTPSender_Send(t *testing.T) {
	s := NewSMTPSender(&config.Config{SmtpHost: "mail.test", SmtpPort: 2525, SmtpFromAddress: "noreply@bidmate.test"}).(*SMTPSender)

	var gotAddr, gotFrom string
	var gotTo []string
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo = addr, from, to
		return nil
	}
	require.NoError(t, s.Send(context.Background(), []string{"b@x.com"}, "New bid on Lamp", []byte("m")))
	assert.Equal(t, "mail.test:2525", gotAddr)
	assert.Equal(t, "noreply@bidmate.test", gotFrom)
	assert.Equal(t, []string{"b@x.com"}, gotTo)

	assert.Error(t, s.Send(context.Background(), nil, "New bid on Lamp", []byte("m")))

	boom := errors.New("connection refused")
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return boom }
	assert.ErrorIs(t, s.Send(context.Background(), []string{"b@x.com"}, "s", []byte("m")), boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, []string{"b@x.com"}, "s", []byte("m")), context.Canceled)
}
