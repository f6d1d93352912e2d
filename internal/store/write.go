package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/worldpurpose/internal/ir"
)

// Append records a call together with its receipt in one transaction.
// Both inserts use ON CONFLICT DO NOTHING, so appending the same entry twice
// is a no-op. A receipt must reference the call it is appended with.
func (s *Store) Append(ctx context.Context, call ir.Call, rcpt ir.Receipt) error {
	if rcpt.CallID != call.ID {
		return fmt.Errorf("append: receipt %s references call %s, not %s", rcpt.ID, rcpt.CallID, call.ID)
	}

	argsJSON, err := marshalObject(call.Args)
	if err != nil {
		return fmt.Errorf("append: marshal args: %w", err)
	}
	resultJSON, err := marshalObject(rcpt.Result)
	if err != nil {
		return fmt.Errorf("append: marshal result: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append: begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertCall(ctx, tx, call, argsJSON); err != nil {
		return err
	}
	if err := insertReceipt(ctx, tx, rcpt, resultJSON); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append: commit: %w", err)
	}
	return nil
}

func insertCall(ctx context.Context, tx *sql.Tx, call ir.Call, argsJSON string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO calls
		(id, tx_token, action, caller, args, seq, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		call.ID,
		call.TxToken,
		string(call.Action),
		call.Caller,
		argsJSON,
		call.Seq,
		call.EngineVersion,
		call.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("append: insert call: %w", err)
	}
	return nil
}

// insertReceipt ignores both a duplicate receipt ID and a second receipt
// for the same call.
func insertReceipt(ctx context.Context, tx *sql.Tx, rcpt ir.Receipt, resultJSON string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO receipts
		(id, call_id, output_case, result, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rcpt.ID,
		rcpt.CallID,
		rcpt.OutputCase,
		resultJSON,
		rcpt.Seq,
	)
	if err != nil {
		return fmt.Errorf("append: insert receipt: %w", err)
	}
	return nil
}
