package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worldpurpose/internal/ir"
	"github.com/roach88/worldpurpose/internal/store"
)

type replayResponse struct {
	Status string       `json:"status"`
	Data   ReplayResult `json:"data"`
	Error  *CLIError    `json:"error"`
}

func TestReplayEmptyJournal(t *testing.T) {
	out := mustRunCLI(t, testDB(t), "replay")
	assert.Contains(t, out, "No entries found in journal.")
}

func TestReplaySummary(t *testing.T) {
	db := testDB(t)
	mustRunCLI(t, db, "set", "Plant a tree", "--as", "alice", "--stake", "0.1")
	mustRunCLI(t, db, "set", "Clean the river", "--as", "bob", "--stake", "0.11")

	out := mustRunCLI(t, db, "replay", "-v")
	assert.Contains(t, out, "Replay Summary: 2 entries (last seq 4)")
	assert.Contains(t, out, `Current: "Clean the river" by bob (0.11)`)
	assert.Contains(t, out, "Held:    0.21 across 2 identities")
	assert.Contains(t, out, "✓ Journal verified deterministic")
}

func TestReplayJSON(t *testing.T) {
	db := testDB(t)
	mustRunCLI(t, db, "set", "Plant a tree", "--as", "alice", "--stake", "0.1")
	mustRunCLI(t, db, "set", "Clean the river", "--as", "bob", "--stake", "0.11")
	mustRunCLI(t, db, "withdraw", "--as", "alice")

	out := mustRunCLI(t, db, "replay", "--format", "json")

	var resp replayResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Deterministic)
	assert.Equal(t, 3, resp.Data.Entries)
	assert.Equal(t, int64(6), resp.Data.LastSeq)
	require.NotNil(t, resp.Data.Current)
	assert.Equal(t, "bob", resp.Data.Current.Owner)
	assert.Equal(t, "0.11", resp.Data.Current.Investment)
	assert.Equal(t, "0.11", resp.Data.Held)
	assert.Equal(t, 1, resp.Data.Holders)
}

// appendForgedWithdraw journals a withdraw that claims success for an
// identity with nothing to withdraw.
func appendForgedWithdraw(t *testing.T, db string, seq int64) {
	t.Helper()
	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	call := ir.Call{
		TxToken:       "tx-forged",
		Action:        ir.ActionWithdraw,
		Caller:        "mallory",
		Args:          ir.IRObject{},
		Seq:           seq,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	call.ID = ir.MustCallID(call.TxToken, call.Action, call.Caller, call.Args, call.Seq)

	rcpt := ir.Receipt{
		CallID:     call.ID,
		OutputCase: ir.OutputSuccess,
		Result:     ir.IRObject{"amount": ir.IRString("1000000000000000000")},
		Seq:        seq + 1,
	}
	rcpt.ID, err = ir.ReceiptID(rcpt.CallID, rcpt.OutputCase, rcpt.Result, rcpt.Seq)
	require.NoError(t, err)

	require.NoError(t, st.Append(context.Background(), call, rcpt))
}

func TestReplayDetectsDivergence(t *testing.T) {
	db := testDB(t)
	mustRunCLI(t, db, "set", "Plant a tree", "--as", "alice", "--stake", "0.1")
	appendForgedWithdraw(t, db, 3)

	out, err := runCLI(t, db, "replay")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Determinism verification failed")
}

func TestReplayDivergenceJSON(t *testing.T) {
	db := testDB(t)
	appendForgedWithdraw(t, db, 1)

	out, err := runCLI(t, db, "replay", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp replayResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Deterministic)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "REPLAY_DIVERGENCE", resp.Error.Code)
	assert.Equal(t, "output case differs on replay", resp.Error.Message)
	assert.Equal(t, int64(1), resp.Error.Seq)
	assert.Equal(t, map[string]string{"want": "Success", "got": "NothingToWithdraw"}, resp.Error.Details)
	assert.NotEmpty(t, resp.Data.Divergence)
}

func TestActionsRefuseDivergentJournal(t *testing.T) {
	db := testDB(t)
	appendForgedWithdraw(t, db, 1)

	_, err := runCLI(t, db, "current")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "journal does not replay")
}
