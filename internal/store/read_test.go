package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worldpurpose/internal/ir"
)

func TestEntries_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Appended out of order on purpose.
	for _, seq := range []int64{5, 1, 3} {
		call, rcpt := createTestEntry(t, "alice", ir.ActionWithdraw, nil, seq, ir.OutputSuccess)
		require.NoError(t, s.Append(ctx, call, rcpt))
	}

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(1), entries[0].Call.Seq)
	assert.Equal(t, int64(3), entries[1].Call.Seq)
	assert.Equal(t, int64(5), entries[2].Call.Seq)
}

func TestEntries_Empty(t *testing.T) {
	s := createTestStore(t)

	entries, err := s.Entries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntries_LargeIntegersSurvive(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	args := ir.IRObject{"n": ir.IRInt(1<<62 + 1)}
	call, rcpt := createTestEntry(t, "alice", ir.ActionSetPurpose, args, 1, ir.OutputSuccess)
	require.NoError(t, s.Append(ctx, call, rcpt))

	got, err := s.Entry(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(1<<62+1), got.Call.Args["n"])
}

func TestEntriesByCaller(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq := int64(1)
	for _, caller := range []string{"alice", "bob", "alice"} {
		call, rcpt := createTestEntry(t, caller, ir.ActionWithdraw, nil, seq, ir.OutputSuccess)
		require.NoError(t, s.Append(ctx, call, rcpt))
		seq += 2
	}

	entries, err := s.EntriesByCaller(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Call.Seq)
	assert.Equal(t, int64(5), entries[1].Call.Seq)

	entries, err = s.EntriesByCaller(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntry_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Entry(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	call, rcpt := createTestEntry(t, "alice", ir.ActionWithdraw, nil, 7, ir.OutputSuccess)
	require.NoError(t, s.Append(ctx, call, rcpt))

	seq, err = s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), seq)
}
