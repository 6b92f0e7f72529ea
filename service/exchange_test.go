package service

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
	"matchbook/domain/tradelog"
)

func newExchange(t *testing.T) *Exchange {
	t.Helper()
	book := orderbook.New(orderbook.Config{})
	ledger := tradelog.NewLedger()
	engine := matching.New(book, ledger, nil)
	return New(book, engine, ledger, nil)
}

func TestSubmitParsesSide(t *testing.T) {
	e := newExchange(t)
	require.NoError(t, e.Submit("1", "B", 100, 10))
	require.NoError(t, e.Submit("2", "S", 105, 5))
	require.Error(t, e.Submit("3", "Q", 100, 10))
	require.Equal(t, 2, e.book.Len())
}

func TestSubmitRejectsInvalidQuantity(t *testing.T) {
	e := newExchange(t)
	err := e.Submit("1", "B", 100, 0)
	require.ErrorIs(t, err, orderbook.ErrInvalidQuantity)
	require.Zero(t, e.book.Len())
}

func TestProcessRecordsMatchesStream(t *testing.T) {
	e := newExchange(t)
	in := strings.Join([]string{
		"1,B,99,1000",
		"2,B,99,500",
		"3,B,98,1200",
		"4,S,101,2000",
		"5,S,95,2000",
	}, "\n")

	require.NoError(t, e.ProcessRecords(strings.NewReader(in)))

	require.Equal(t, []string{
		"trade 5,1,99,1000",
		"trade 5,2,99,500",
		"trade 5,3,98,500",
	}, e.TradeLines())

	require.Equal(t, []string{
		"      700     98|   101      2000",
	}, e.BookLines())

	require.Equal(t, append(e.TradeLines(), e.BookLines()...), e.Output())
}

func TestProcessRecordsSkipsMalformedLines(t *testing.T) {
	e := newExchange(t)
	in := strings.Join([]string{
		"1,B,99,1000",
		"garbage line",
		"2,Q,99,500",
		"3,B,abc,500",
		"4,B,99,0",
		"",
		"5,S,99,400",
	}, "\n")

	require.NoError(t, e.ProcessRecords(strings.NewReader(in)))

	// Only the valid records reach the book; the sell then matches.
	require.Equal(t, []string{"trade 5,1,99,400"}, e.TradeLines())
	require.Equal(t, 1, e.book.Len())
	o, ok := e.book.Get("1")
	require.True(t, ok)
	require.Equal(t, int64(600), o.Qty())
}

func TestBookLinesPairsUnevenSides(t *testing.T) {
	e := newExchange(t)
	require.NoError(t, e.Submit("1", "B", 100, 10))
	require.NoError(t, e.Submit("2", "B", 98, 700))
	require.NoError(t, e.Submit("3", "S", 101, 2000))

	lines := e.BookLines()
	require.Len(t, lines, 2)
	require.Equal(t, "       10    100|   101      2000", lines[0])
	require.Equal(t, "      700     98|                ", lines[1])
}

func TestBookLinesEmptyBook(t *testing.T) {
	e := newExchange(t)
	require.Empty(t, e.BookLines())
	require.Empty(t, e.Output())
}

func TestBackupRoundTripPreservesContinuation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resting.txt")

	seed := strings.Join([]string{
		"1,B,99,1000",
		"2,B,98,500",
		"3,S,101,2000",
	}, "\n")
	cont := "4,S,99,600\n"

	// One continuous run.
	oneRun := newExchange(t)
	require.NoError(t, oneRun.ProcessRecords(strings.NewReader(seed)))
	require.NoError(t, oneRun.ProcessRecords(strings.NewReader(cont)))

	// Same stream split across a restart with a backup in between.
	first := newExchange(t)
	require.NoError(t, first.ProcessRecords(strings.NewReader(seed)))
	require.NoError(t, first.WriteBackup(path))

	second := newExchange(t)
	require.NoError(t, second.RestoreBackup(path))
	require.NoError(t, second.ProcessRecords(strings.NewReader(cont)))

	require.Equal(t, oneRun.BookLines(), second.BookLines())
	require.Equal(t, oneRun.TradeLines()[len(oneRun.TradeLines())-1:],
		second.TradeLines(), "the restarted run replays only the continuation trades")
}

func TestRestoreBackupMissingFile(t *testing.T) {
	e := newExchange(t)
	require.NoError(t, e.RestoreBackup(filepath.Join(t.TempDir(), "absent.txt")))
	require.Zero(t, e.book.Len())
}

func TestProcessReturnsTrades(t *testing.T) {
	e := newExchange(t)
	require.NoError(t, e.Submit("1", "S", 100, 10))

	trades, err := e.Process("2", "B", 100, 4)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, tradelog.Trade{AggressorID: "2", RestingID: "1", Price: 100, Qty: 4}, trades[0])
}
