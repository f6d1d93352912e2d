package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/worldpurpose/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry builds a call and its receipt with real content-addressed IDs.
// The receipt is stamped at seq+1.
func createTestEntry(t *testing.T, caller string, action ir.Action, args ir.IRObject, seq int64, outputCase string) (ir.Call, ir.Receipt) {
	t.Helper()
	if args == nil {
		args = ir.IRObject{}
	}
	call := ir.Call{
		TxToken:       "tx-test",
		Action:        action,
		Caller:        caller,
		Args:          args,
		Seq:           seq,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	call.ID = ir.MustCallID(call.TxToken, action, caller, args, seq)

	rcpt := ir.Receipt{
		CallID:     call.ID,
		OutputCase: outputCase,
		Result:     ir.IRObject{},
		Seq:        seq + 1,
	}
	id, err := ir.ReceiptID(rcpt.CallID, rcpt.OutputCase, rcpt.Result, rcpt.Seq)
	if err != nil {
		t.Fatalf("ReceiptID() failed: %v", err)
	}
	rcpt.ID = id
	return call, rcpt
}
