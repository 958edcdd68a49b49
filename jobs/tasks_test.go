package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/stratus-cloud/stratus/internal/user"
)

type recordingNotifier struct {
	sent []string
}

func (n *recordingNotifier) Send(ctx context.Context, subject, body, to string) error {
	n.sent = append(n.sent, to)
	return nil
}

type stubUsers struct {
	users map[int64]user.User
}

func (s *stubUsers) FindByID(ctx context.Context, id int64) (user.User, error) {
	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendEmailHandlerDirectAddress(t *testing.T) {
	notifier := &recordingNotifier{}
	handler := NewSendEmailHandler(notifier, &stubUsers{}, discardLogger())

	task, err := NewSendEmailTask(SendEmailPayload{To: "alice@example.org", Subject: "hi", Body: "hello"})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, []string{"alice@example.org"}, notifier.sent)
}

func TestSendEmailHandlerResolvesUser(t *testing.T) {
	notifier := &recordingNotifier{}
	users := &stubUsers{users: map[int64]user.User{7: {ID: 7, Email: "bob@example.org"}}}
	handler := NewSendEmailHandler(notifier, users, discardLogger())

	task, err := NewSendEmailTask(SendEmailPayload{UserID: 7, Subject: "hi", Body: "hello"})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, []string{"bob@example.org"}, notifier.sent)
}

func TestSendEmailHandlerDropsMissingUser(t *testing.T) {
	notifier := &recordingNotifier{}
	handler := NewSendEmailHandler(notifier, &stubUsers{}, discardLogger())

	task, err := NewSendEmailTask(SendEmailPayload{UserID: 404, Subject: "hi", Body: "hello"})
	require.NoError(t, err)

	err = handler(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, notifier.sent)
}

type stubSweeper struct {
	swept int64
	err   error
}

func (s *stubSweeper) SweepExpired(ctx context.Context) (int64, error) {
	return s.swept, s.err
}

func TestInvitationSweepHandler(t *testing.T) {
	handler := NewInvitationSweepHandler(&stubSweeper{swept: 3}, discardLogger())
	require.NoError(t, handler(context.Background(), NewInvitationSweepTask()))

	failing := NewInvitationSweepHandler(&stubSweeper{err: errors.New("db down")}, discardLogger())
	require.Error(t, failing(context.Background(), NewInvitationSweepTask()))
}
