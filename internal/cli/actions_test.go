package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worldpurpose/internal/store"
)

type receiptResponse struct {
	Status string      `json:"status"`
	Data   ReceiptView `json:"data"`
	Error  *CLIError   `json:"error"`
}

func decodeReceipt(t *testing.T, out string) receiptResponse {
	t.Helper()
	var resp receiptResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestSetAndCurrent(t *testing.T) {
	db := testDB(t)

	out := mustRunCLI(t, db, "set", "Plant a tree", "--as", "alice", "--stake", "0.1")
	assert.Contains(t, out, "✓ Purpose set by alice (seq 2)")
	assert.Contains(t, out, "Investment: 0.1")

	out = mustRunCLI(t, db, "current")
	assert.Contains(t, out, "Current purpose")
	assert.Contains(t, out, "Purpose:    Plant a tree")
	assert.Contains(t, out, "Owner:      alice")
	assert.Contains(t, out, "Investment: 0.1")
}

func TestCurrentWithNoPurpose(t *testing.T) {
	out := mustRunCLI(t, testDB(t), "current")
	assert.Contains(t, out, "No purpose set.")
}

func TestSetSelfOverrideRejected(t *testing.T) {
	db := testDB(t)
	mustRunCLI(t, db, "set", "Plant a tree", "--as", "alice", "--stake", "0.1")

	out, err := runCLI(t, db, "set", "Plant two trees", "--as", "alice", "--stake", "0.2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ setPurpose by alice: SelfOverride")
	assert.Contains(t, out, "You cannot override your own purpose")

	out = mustRunCLI(t, db, "current")
	assert.Contains(t, out, "Purpose:    Plant a tree")
}

func TestSetRejectionsJSON(t *testing.T) {
	tests := []struct {
		name    string
		purpose string
		stake   string
		code    string
		message string
	}{
		{"empty purpose", "", "0.1", "EmptyPurpose", "You need to set a purpose message"},
		{"zero stake", "Plant a tree", "0", "NonPositiveStake", "You need to invest more than zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, testDB(t), "set", tt.purpose, "--as", "alice", "--stake", tt.stake, "--format", "json")
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			resp := decodeReceipt(t, out)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
			assert.Equal(t, tt.code, resp.Data.OutputCase)
		})
	}
}

func TestSetInsufficientStake(t *testing.T) {
	db := testDB(t)
	mustRunCLI(t, db, "set", "Plant a tree", "--as", "alice", "--stake", "0.1")

	out, err := runCLI(t, db, "set", "Clean the river", "--as", "bob", "--stake", "0.1")
	require.Error(t, err)
	assert.Contains(t, out, "InsufficientStake")
	assert.Contains(t, out, "You need to invest more than the previous purpose owner")
}

func TestWithdrawAfterDisplacement(t *testing.T) {
	db := testDB(t)
	mustRunCLI(t, db, "set", "Plant a tree", "--as", "alice", "--stake", "0.1")

	out := mustRunCLI(t, db, "set", "Clean the river", "--as", "bob", "--stake", "0.11")
	assert.Contains(t, out, "✓ Purpose set by bob (seq 4)")

	out = mustRunCLI(t, db, "withdraw", "--as", "alice")
	assert.Contains(t, out, "✓ Withdrew 0.1 by alice")

	out, err := runCLI(t, db, "withdraw", "--as", "alice")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "NothingToWithdraw")

	// The current owner's stake stays locked.
	out, err = runCLI(t, db, "withdraw", "--as", "bob")
	require.Error(t, err)
	assert.Contains(t, out, "NothingToWithdraw")
}

func TestBalanceJSON(t *testing.T) {
	db := testDB(t)
	mustRunCLI(t, db, "set", "Plant a tree", "--as", "alice", "--stake", "0.1")
	mustRunCLI(t, db, "set", "Clean the river", "--as", "bob", "--stake", "0.11")

	resp := decodeReceipt(t, mustRunCLI(t, db, "balance", "--as", "alice", "--format", "json"))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "getBalance", resp.Data.Action)
	assert.Equal(t, "alice", resp.Data.Caller)
	assert.Equal(t, "0.1", resp.Data.Result["balance"])
	assert.Equal(t, "0.1", resp.Data.Result["withdrawable"])
	assert.Equal(t, "0", resp.Data.Result["locked"])

	resp = decodeReceipt(t, mustRunCLI(t, db, "balance", "--as", "bob", "--format", "json"))
	assert.Equal(t, "0.11", resp.Data.Result["balance"])
	assert.Equal(t, "0", resp.Data.Result["withdrawable"])
	assert.Equal(t, "0.11", resp.Data.Result["locked"])
}

func TestBalanceText(t *testing.T) {
	out := mustRunCLI(t, testDB(t), "balance", "--as", "carol")
	assert.Contains(t, out, "Balance of carol")
	assert.Contains(t, out, "Balance:      0")
	assert.Contains(t, out, "Withdrawable: 0")
	assert.Contains(t, out, "Locked:       0")
}

func TestPurposeTextSurvivesReplay(t *testing.T) {
	db := testDB(t)

	out := mustRunCLI(t, db, "set", "Plant a tree in Mala\u0301ga \U0001F333", "--as", "jose\u0301", "--stake", "0.1")
	assert.Contains(t, out, "Purpose:    Plant a tree in M\u00e1laga \U0001F333")

	// Every command replays the journal first.
	out = mustRunCLI(t, db, "current")
	assert.Contains(t, out, "Purpose:    Plant a tree in M\u00e1laga \U0001F333")
	assert.Contains(t, out, "Owner:      jos\u00e9")

	mustRunCLI(t, db, "set", "Clean the river", "--as", "bob", "--stake", "0.11")
	out = mustRunCLI(t, db, "withdraw", "--as", "jos\u00e9")
	assert.Contains(t, out, "✓ Withdrew 0.1")
	mustRunCLI(t, db, "replay")
}

func TestInvalidUTF8Purpose(t *testing.T) {
	db := testDB(t)

	_, err := runCLI(t, db, "set", "Plant a tree \xff", "--as", "alice", "--stake", "0.1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid setPurpose call")

	out := mustRunCLI(t, db, "replay")
	assert.Contains(t, out, "No entries found in journal.")
}

func TestWeiUnits(t *testing.T) {
	db := testDB(t)

	out := mustRunCLI(t, db, "set", "Plant a tree", "--as", "alice", "--stake", "100000000000000000", "--units", "wei")
	assert.Contains(t, out, "Investment: 100000000000000000")

	out = mustRunCLI(t, db, "current")
	assert.Contains(t, out, "Investment: 0.1")
}

func TestInvalidStake(t *testing.T) {
	for _, stake := range []string{"abc", "1.5", ""} {
		units := "ether"
		if stake == "1.5" {
			units = "wei"
		}
		_, err := runCLI(t, testDB(t), "set", "Plant a tree", "--as", "alice", "--stake", stake, "--units", units)
		require.Error(t, err, "stake %q", stake)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "invalid --stake")
	}
}

func TestRequiredFlags(t *testing.T) {
	tests := []struct {
		args []string
		flag string
	}{
		{[]string{"set", "Plant a tree", "--stake", "0.1"}, "as"},
		{[]string{"set", "Plant a tree", "--as", "alice"}, "stake"},
		{[]string{"withdraw"}, "as"},
		{[]string{"balance"}, "as"},
	}

	for _, tt := range tests {
		_, err := runCLI(t, testDB(t), tt.args...)
		require.Error(t, err, "%v", tt.args)
		assert.Contains(t, err.Error(), `required flag(s) "`+tt.flag+`" not set`)
	}
}

func TestOnlyStateChangingCallsAreJournaled(t *testing.T) {
	db := testDB(t)
	mustRunCLI(t, db, "set", "Plant a tree", "--as", "alice", "--stake", "0.1")
	_, err := runCLI(t, db, "set", "Plant two trees", "--as", "alice", "--stake", "0.2")
	require.Error(t, err)
	mustRunCLI(t, db, "current")
	mustRunCLI(t, db, "balance", "--as", "alice")
	mustRunCLI(t, db, "set", "Clean the river", "--as", "bob", "--stake", "0.11")
	mustRunCLI(t, db, "withdraw", "--as", "alice")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	entries, err := st.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 4)

	cases := make([]string, len(entries))
	for i, e := range entries {
		cases[i] = e.Receipt.OutputCase
	}
	assert.Equal(t, []string{"Success", "SelfOverride", "Success", "Success"}, cases)

	lastSeq, err := st.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), lastSeq)
}

func TestSetJSONCarriesCallID(t *testing.T) {
	out := mustRunCLI(t, testDB(t), "set", "Plant a tree", "--as", "alice", "--stake", "0.1", "--format", "json")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.CallID)

	view := decodeReceipt(t, out).Data
	assert.Equal(t, resp.CallID, view.CallID)
	assert.Equal(t, int64(2), view.Seq)
}
