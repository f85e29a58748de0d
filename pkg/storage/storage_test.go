package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveKey(t *testing.T) {
	at := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)

	key := ArchiveKey(42, "reports/q1 sales.csv", at)
	assert.True(t, strings.HasPrefix(key, "org-42/2026/03/09/"), key)
	assert.True(t, strings.HasSuffix(key, "-q1 sales.csv"), key)

	assert.True(t, strings.HasSuffix(ArchiveKey(1, `C:\tmp\a.csv`, at), "-a.csv"))
	assert.True(t, strings.HasSuffix(ArchiveKey(1, "", at), "-upload"))
	assert.NotEqual(t, ArchiveKey(1, "a.csv", at), ArchiveKey(1, "a.csv", at))
}

func TestNopStore(t *testing.T) {
	info, err := NopStore{}.Put(context.Background(), "k", strings.NewReader("abc"), 3, "text/csv")
	require.NoError(t, err)
	assert.Equal(t, ObjectInfo{Key: "k", Size: 3}, info)
}
