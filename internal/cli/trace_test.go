package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worldpurpose/internal/store"
)

type traceResponse struct {
	Status string      `json:"status"`
	Data   TraceResult `json:"data"`
}

// seedJournal records a displacement, a rejection and a withdrawal.
func seedJournal(t *testing.T) string {
	t.Helper()
	db := testDB(t)
	mustRunCLI(t, db, "set", "Plant a tree", "--as", "alice", "--stake", "0.1")
	_, err := runCLI(t, db, "set", "Plant two trees", "--as", "alice", "--stake", "0.2")
	require.Error(t, err)
	mustRunCLI(t, db, "set", "Clean the river", "--as", "bob", "--stake", "0.11")
	mustRunCLI(t, db, "withdraw", "--as", "alice")
	return db
}

func TestTraceEmptyJournal(t *testing.T) {
	out := mustRunCLI(t, testDB(t), "trace")
	assert.Contains(t, out, "No entries found in journal.")
}

func TestTraceTimeline(t *testing.T) {
	out := mustRunCLI(t, seedJournal(t), "trace")

	assert.Contains(t, out, "Timeline:")
	assert.Contains(t, out, `[1] ✓ setPurpose by alice purpose="Plant a tree" stake="0.1" -> Success`)
	assert.Contains(t, out, `[3] ✗ setPurpose by alice purpose="Plant two trees" stake="0.2" -> SelfOverride`)
	assert.Contains(t, out, `[5] ✓ setPurpose by bob purpose="Clean the river" stake="0.11" -> Success`)
	assert.Contains(t, out, "[7] ✓ withdraw by alice -> Success")
	assert.Contains(t, out, "Stats: 4 calls, 3 succeeded, 1 rejected")
}

func TestTraceFilterByCaller(t *testing.T) {
	db := seedJournal(t)

	out := mustRunCLI(t, db, "trace", "--as", "bob")
	assert.Contains(t, out, "setPurpose by bob")
	assert.NotContains(t, out, "by alice")
	assert.Contains(t, out, "Stats: 1 calls, 1 succeeded, 0 rejected")

	out = mustRunCLI(t, db, "trace", "--as", "carol")
	assert.Contains(t, out, "No calls found for: carol")
}

func TestTraceJSON(t *testing.T) {
	out := mustRunCLI(t, seedJournal(t), "trace", "--format", "json", "--units", "wei")

	var resp traceResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Timeline, 4)

	stats := resp.Data.Stats
	assert.Equal(t, 4, stats.Calls)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, map[string]int{"Success": 3, "SelfOverride": 1}, stats.ByCase)

	withdraw := resp.Data.Timeline[3]
	assert.Equal(t, "withdraw", withdraw.Action)
	assert.Equal(t, int64(7), withdraw.Seq)
	assert.Equal(t, int64(8), withdraw.ReceiptSeq)
	assert.Equal(t, "100000000000000000", withdraw.Result["amount"])
}

func TestTraceSingleCall(t *testing.T) {
	db := seedJournal(t)

	st, err := store.Open(db)
	require.NoError(t, err)
	entries, err := st.Entries(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out := mustRunCLI(t, db, "trace", "--call", entries[2].Call.ID, "-v")
	assert.Contains(t, out, "setPurpose by bob")
	assert.Contains(t, out, "call "+entries[2].Call.ID)
	assert.Contains(t, out, "Stats: 1 calls")
}

func TestTraceUnknownCall(t *testing.T) {
	_, err := runCLI(t, seedJournal(t), "trace", "--call", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "call not found: nope")
}
