package backup

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"matchbook/domain/orderbook"
)

type replayed struct {
	id    string
	side  orderbook.Side
	price int64
	qty   int64
}

func collector(into *[]replayed) SubmitFunc {
	return func(id string, side orderbook.Side, price, qty int64) error {
		*into = append(*into, replayed{id, side, price, qty})
		return nil
	}
}

func mustOrder(t *testing.T, id string, side orderbook.Side, price, qty int64) *orderbook.Order {
	t.Helper()
	o, err := orderbook.NewOrder(id, side, price, qty)
	require.NoError(t, err)
	return o
}

func TestWriteFormat(t *testing.T) {
	var buf bytes.Buffer
	buys := []*orderbook.Order{mustOrder(t, "3", orderbook.Buy, 98, 700)}
	sells := []*orderbook.Order{mustOrder(t, "4", orderbook.Sell, 101, 2000)}

	require.NoError(t, Write(&buf, buys, sells))
	require.Equal(t, "3,B,98,700\n4,S,101,2000\n", buf.String())
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	buys := []*orderbook.Order{
		mustOrder(t, "1", orderbook.Buy, 100, 10),
		mustOrder(t, "2", orderbook.Buy, 98, 700),
	}
	sells := []*orderbook.Order{mustOrder(t, "3", orderbook.Sell, 101, 2000)}
	require.NoError(t, Write(&buf, buys, sells))

	var got []replayed
	restored, skipped, err := Read(&buf, collector(&got))
	require.NoError(t, err)
	require.Equal(t, 3, restored)
	require.Zero(t, skipped)
	require.Equal(t, []replayed{
		{"1", orderbook.Buy, 100, 10},
		{"2", orderbook.Buy, 98, 700},
		{"3", orderbook.Sell, 101, 2000},
	}, got)
}

func TestReadSkipsMalformedLines(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		"1,B,100,10",
		"not-a-record",
		"2,X,100,10",
		"3,S,abc,10",
		"",
		"4,S,101,5",
	}, "\n"))

	var got []replayed
	restored, skipped, err := Read(in, collector(&got))
	require.NoError(t, err)
	require.Equal(t, 2, restored)
	require.Equal(t, 3, skipped)
	require.Equal(t, "1", got[0].id)
	require.Equal(t, "4", got[1].id)
}

func TestReadCountsSubmitFailures(t *testing.T) {
	in := strings.NewReader("1,B,100,10\n2,S,101,5\n")
	restored, skipped, err := Read(in, func(id string, _ orderbook.Side, _, _ int64) error {
		if id == "2" {
			return errors.New("rejected")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, restored)
	require.Equal(t, 1, skipped)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resting.txt")
	buys := []*orderbook.Order{mustOrder(t, "1", orderbook.Buy, 100, 10)}

	require.NoError(t, Save(path, buys, nil))

	var got []replayed
	restored, skipped, err := Load(path, collector(&got))
	require.NoError(t, err)
	require.Equal(t, 1, restored)
	require.Zero(t, skipped)
	require.Equal(t, replayed{"1", orderbook.Buy, 100, 10}, got[0])
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	restored, skipped, err := Load(filepath.Join(t.TempDir(), "absent.txt"), collector(new([]replayed)))
	require.NoError(t, err)
	require.Zero(t, restored)
	require.Zero(t, skipped)
}

func TestSaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resting.txt")
	require.NoError(t, Save(path, []*orderbook.Order{mustOrder(t, "1", orderbook.Buy, 100, 10)}, nil))
	require.NoError(t, Save(path, nil, []*orderbook.Order{mustOrder(t, "2", orderbook.Sell, 101, 5)}))

	var got []replayed
	restored, _, err := Load(path, collector(&got))
	require.NoError(t, err)
	require.Equal(t, 1, restored)
	require.Equal(t, "2", got[0].id)
}
