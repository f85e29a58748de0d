//go:build integration

package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
	"github.com/sheetsmith/sheetsmith-engine/pkg/testhelpers"
)

func TestConversationRepository_RoundTrip(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	ctx, done := engineDB.TenantContext(t, testOrgID)
	defer done()

	repo := NewConversationRepository()
	userID := "repo-test-user-" + time.Now().Format("150405.000000")
	defer func() { _, _ = repo.DeleteByUser(ctx, userID) }()

	first, err := repo.NextChatID(ctx)
	require.NoError(t, err)
	second, err := repo.NextChatID(ctx)
	require.NoError(t, err)
	assert.Greater(t, second, first)

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []*models.ConversationMessage{
		{ChatID: first, UserID: userID, OrganizationID: testOrgID, LLMType: "default", Role: models.RoleUser,
			Content: []models.ContentPart{models.TextPart("hello"), models.ImagePart("https://img/1.png")}, Timestamp: ts, IsUser: true},
		{ChatID: first, UserID: userID, OrganizationID: testOrgID, LLMType: "default", Role: models.RoleAssistant,
			Content: []models.ContentPart{models.TextPart("hi")}, Timestamp: ts, IsUser: false},
	}
	require.NoError(t, repo.InsertMessages(ctx, msgs))
	assert.NotZero(t, msgs[0].ID)

	got, err := repo.ListByChat(ctx, first, userID, testOrgID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Equal timestamps fall back to insertion order.
	assert.Equal(t, models.RoleUser, got[0].Role)
	assert.Equal(t, "https://img/1.png", got[0].Content[1].ImageURL.URL)
	assert.Equal(t, "hi", got[1].Text())

	foreignUser, err := repo.ListByChat(ctx, first, "someone-else", testOrgID)
	require.NoError(t, err)
	assert.Empty(t, foreignUser)
	foreignOrg, err := repo.ListByChat(ctx, first, userID, testOrgID+1)
	require.NoError(t, err)
	assert.Empty(t, foreignOrg)

	deleted, err := repo.DeleteByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}
