package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/worldpurpose/internal/ir"
)

// Entry is one journaled call and its receipt.
type Entry struct {
	Call    ir.Call
	Receipt ir.Receipt
}

// ErrNotFound is returned when a requested call is not in the journal.
var ErrNotFound = errors.New("not found")

const entryColumns = `
	c.id, c.tx_token, c.action, c.caller, c.args, c.seq, c.engine_version, c.ir_version,
	r.id, r.output_case, r.result, r.seq`

// Entries returns every journaled entry in replay order.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+entryColumns+`
		FROM calls c
		JOIN receipts r ON r.call_id = c.id
		ORDER BY c.seq ASC, c.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// EntriesByCaller returns the entries submitted by one identity, in replay order.
func (s *Store) EntriesByCaller(ctx context.Context, caller string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+entryColumns+`
		FROM calls c
		JOIN receipts r ON r.call_id = c.id
		WHERE c.caller = ?
		ORDER BY c.seq ASC, c.id COLLATE BINARY ASC
	`, caller)
	if err != nil {
		return nil, fmt.Errorf("query entries for %s: %w", caller, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Entry returns the entry for a call ID.
// Returns ErrNotFound if the call was never journaled.
func (s *Store) Entry(ctx context.Context, callID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+entryColumns+`
		FROM calls c
		JOIN receipts r ON r.call_id = c.id
		WHERE c.id = ?
	`, callID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("entry %s: %w", callID, ErrNotFound)
	}
	return e, err
}

// LastSeq returns the highest seq in the journal, or 0 when it is empty.
// Receipts are always stamped after their call, so this is the receipt seq.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM receipts`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e          Entry
		action     string
		argsJSON   string
		resultJSON string
	)
	err := row.Scan(
		&e.Call.ID, &e.Call.TxToken, &action, &e.Call.Caller, &argsJSON,
		&e.Call.Seq, &e.Call.EngineVersion, &e.Call.IRVersion,
		&e.Receipt.ID, &e.Receipt.OutputCase, &resultJSON, &e.Receipt.Seq,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	e.Call.Action = ir.Action(action)
	e.Receipt.CallID = e.Call.ID

	if e.Call.Args, err = unmarshalObject(argsJSON); err != nil {
		return Entry{}, fmt.Errorf("call %s args: %w", e.Call.ID, err)
	}
	if e.Receipt.Result, err = unmarshalObject(resultJSON); err != nil {
		return Entry{}, fmt.Errorf("receipt %s result: %w", e.Receipt.ID, err)
	}
	return e, nil
}
