package cli_test

import (
	"bytes"
	"context"
	"testing"

	"invoice-agent/internal/adapters/cli"
	"invoice-agent/internal/ai"
	"invoice-agent/internal/app"
	"invoice-agent/internal/quickbooks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	app.ApplicationService
	chatUser string
	chatMsgs []ai.Message
}

func (f *fakeService) Cleanup(context.Context) (*app.CleanupResult, error) {
	return &app.CleanupResult{ExpiredTokens: 2, ExpiredInvitations: 1}, nil
}

func (f *fakeService) QuickBooksStatus(_ context.Context, userID string) (quickbooks.ConnectionStatus, error) {
	return quickbooks.ConnectionStatus{Connected: userID == "alice", RealmID: "123"}, nil
}

func (f *fakeService) Calculate(expr string) (float64, error) {
	return ai.Evaluate(expr)
}

func (f *fakeService) Chat(_ context.Context, userID string, req app.ChatRequest) (*ai.ChatResult, error) {
	f.chatUser, f.chatMsgs = userID, req.Messages
	return &ai.ChatResult{Reply: "All paid."}, nil
}

func run(t *testing.T, svc app.ApplicationService, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := cli.Run(context.Background(), svc, args, &out)
	return out.String(), err
}

func TestRun_Cleanup(t *testing.T) {
	out, err := run(t, &fakeService{}, "cleanup")
	require.NoError(t, err)
	assert.Equal(t, "Deleted 2 expired token(s) and 1 expired invitation(s).\n", out)
}

func TestRun_Status(t *testing.T) {
	out, err := run(t, &fakeService{}, "status", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, `"connected": true`)
	assert.Contains(t, out, `"realm_id": "123"`)

	_, err = run(t, &fakeService{}, "status")
	assert.ErrorIs(t, err, cli.ErrUsage)
}

func TestRun_Calc(t *testing.T) {
	out, err := run(t, &fakeService{}, "calc", "(2", "+", "3)", "*", "4")
	require.NoError(t, err)
	assert.Equal(t, "(2 + 3) * 4 = 20\n", out)

	_, err = run(t, &fakeService{}, "calc", "1/0")
	assert.ErrorIs(t, err, ai.ErrDivisionByZero)
}

func TestRun_Chat(t *testing.T) {
	svc := &fakeService{}
	out, err := run(t, svc, "chat", "any", "overdue?")
	require.NoError(t, err)
	assert.Equal(t, "All paid.\n", out)
	assert.Equal(t, cli.LocalUserID, svc.chatUser)
	require.Len(t, svc.chatMsgs, 1)
	assert.Equal(t, ai.Message{Role: "user", Content: "any overdue?"}, svc.chatMsgs[0])
}

func TestRun_Unknown(t *testing.T) {
	_, err := run(t, &fakeService{}, "propose")
	assert.ErrorIs(t, err, cli.ErrUsage)

	_, err = run(t, &fakeService{})
	assert.ErrorIs(t, err, cli.ErrUsage)
}
