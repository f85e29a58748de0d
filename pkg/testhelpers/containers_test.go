//go:build integration

package testhelpers

import (
	"testing"
)

func TestEngineDB_MigrationsApplied(t *testing.T) {
	engineDB := GetEngineDB(t)
	ctx, cleanup := engineDB.ScopedContext(t)
	defer cleanup()

	for _, table := range []string{"engine_table_metadata", "engine_organization_tables", "engine_conversation_messages", "engine_data_profiles"} {
		var exists bool
		err := engineDB.DB.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", table).
			Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check %s: %v", table, err)
		}
		if !exists {
			t.Errorf("expected table %s to exist", table)
		}
	}

	var next int64
	if err := engineDB.DB.QueryRow(ctx, "SELECT nextval('engine_chat_id_seq')").Scan(&next); err != nil {
		t.Fatalf("chat id sequence missing: %v", err)
	}
}
