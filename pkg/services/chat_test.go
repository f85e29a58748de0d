package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/conversation"
	"github.com/sheetsmith/sheetsmith-engine/pkg/llm"
	"github.com/sheetsmith/sheetsmith-engine/pkg/prompts"
)

func TestChat_HistoryAccumulatesPerHandle(t *testing.T) {
	store := &mockMessageStore{}
	model := llm.NewMockChatModel("first answer", "second answer", "fresh answer")
	factory := newTestFactory(t, model, store, GatewayConfig{})
	registry := conversation.NewRegistry(prompts.MustLoadRegistry(), zap.NewNop())
	svc := NewChatService(registry, factory, store, zap.NewNop())
	owner := Owner{UserID: "u1", OrganizationID: 3}

	reply, err := svc.Reply(context.Background(), "handle-a", owner, "hello")
	require.NoError(t, err)
	assert.Equal(t, "first answer", reply)

	_, err = svc.Reply(context.Background(), "handle-a", owner, "and then?")
	require.NoError(t, err)
	assert.Len(t, model.LastRequest().Messages, 4)

	_, err = svc.Reply(context.Background(), "handle-b", owner, "hi")
	require.NoError(t, err)
	assert.Len(t, model.LastRequest().Messages, 2)

	require.Len(t, store.messages, 6)
	assert.Equal(t, store.messages[0].ChatID, store.messages[3].ChatID)
	assert.NotEqual(t, store.messages[0].ChatID, store.messages[5].ChatID)
}

func TestChat_SharedHandleIsScopedPerUser(t *testing.T) {
	store := &mockMessageStore{}
	model := llm.NewMockChatModel("answer")
	factory := newTestFactory(t, model, store, GatewayConfig{})
	registry := conversation.NewRegistry(prompts.MustLoadRegistry(), zap.NewNop())
	svc := NewChatService(registry, factory, store, zap.NewNop())
	alice := Owner{UserID: "alice", OrganizationID: 3}
	mallory := Owner{UserID: "mallory", OrganizationID: 4}

	_, err := svc.Reply(context.Background(), "shared", alice, "my secret is 42")
	require.NoError(t, err)

	_, err = svc.Reply(context.Background(), "shared", mallory, "what did they say?")
	require.NoError(t, err)
	req := model.LastRequest()
	require.Len(t, req.Messages, 2)
	for _, msg := range req.Messages {
		assert.NotContains(t, msg.Text(), "my secret is 42")
	}
	assert.Equal(t, 2, registry.Len())

	require.Len(t, store.messages, 4)
	assert.Equal(t, "mallory", store.messages[2].UserID)
	assert.Equal(t, int64(4), store.messages[2].OrganizationID)
	assert.NotEqual(t, store.messages[0].ChatID, store.messages[2].ChatID)

	_, err = svc.ClearHistory(context.Background(), "shared", "mallory")
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Len())

	_, err = svc.Reply(context.Background(), "shared", alice, "still there?")
	require.NoError(t, err)
	assert.Len(t, model.LastRequest().Messages, 4)
}

func TestChat_ClearHistory(t *testing.T) {
	store := &mockMessageStore{}
	model := llm.NewMockChatModel("answer")
	factory := newTestFactory(t, model, store, GatewayConfig{})
	registry := conversation.NewRegistry(prompts.MustLoadRegistry(), zap.NewNop())
	svc := NewChatService(registry, factory, store, zap.NewNop())
	owner := Owner{UserID: "u1", OrganizationID: 3}

	_, err := svc.Reply(context.Background(), "h", owner, "hello")
	require.NoError(t, err)

	n, err := svc.ClearHistory(context.Background(), "h", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Zero(t, registry.Len())

	_, err = svc.Reply(context.Background(), "h", owner, "again")
	require.NoError(t, err)
	assert.Len(t, model.LastRequest().Messages, 2)
}
