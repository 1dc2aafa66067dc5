package genai

import (
	"context"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   *openai.ChatCompletion
	err    error
	calls  int
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.calls++
	m.params = params
	return m.resp, m.err
}

func completion(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}
}

func newTestClient(chat chatService) *Client {
	return &Client{chat: chat, model: DefaultModel, logger: zap.NewNop()}
}

func TestGeneratePromptSuccess(t *testing.T) {
	mock := &mockChatService{resp: completion("Hello World")}
	out, err := newTestClient(mock).GeneratePrompt(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", out)
	assert.Equal(t, DefaultModel, mock.params.Model)
	assert.Len(t, mock.params.Messages, 2)
}

func TestGeneratePromptServiceError(t *testing.T) {
	mock := &mockChatService{err: errors.New("service failure")}
	_, err := newTestClient(mock).GeneratePrompt(context.Background(), "sys", "usr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service failure")
}

func TestGeneratePromptNoChoices(t *testing.T) {
	mock := &mockChatService{resp: &openai.ChatCompletion{}}
	_, err := newTestClient(mock).GeneratePrompt(context.Background(), "sys", "usr")
	assert.Equal(t, ErrNoChoicesReturned, err)
}

func TestWeeklyDigest(t *testing.T) {
	mock := &mockChatService{resp: completion("Sunday was busiest.")}
	out, err := newTestClient(mock).WeeklyDigest(context.Background(), []models.WeekdayCount{{Weekday: 0, Count: 2}, {Weekday: 3, Count: 1}})
	require.NoError(t, err)
	assert.Equal(t, "Sunday was busiest.", out)
	assert.Equal(t, 1, mock.calls)
}

func TestWeeklyDigestEmptyWeekSkipsAPI(t *testing.T) {
	mock := &mockChatService{resp: completion("unused")}
	out, err := newTestClient(mock).WeeklyDigest(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, mock.calls)
}

func TestDigestInput(t *testing.T) {
	got := DigestInput([]models.WeekdayCount{{Weekday: 0, Count: 2}, {Weekday: 3, Count: 1}})
	assert.Equal(t, "Patients per weekday over the last 7 days:\nSunday: 2\nWednesday: 1\nTotal: 3", got)
}

func TestNewClientNoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestNewClientWithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-test"))
	require.NoError(t, err)
	require.NotNil(t, cli)
	assert.Equal(t, openai.ChatModel("gpt-test"), cli.model)
}

func TestNewClientFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	cli, err := NewClient()
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cli.model)
}
