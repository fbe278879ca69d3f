package export

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/casebatch/internal/adapters/sqlite"
	"github.com/bft-labs/casebatch/internal/domain"
)

func TestWriteCSV(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "cases.db"), sqlite.Options{Autosave: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	inputs := []domain.Case{
		{Profile: "p/P01.csv", Evidence: "e/E01.csv", Contributors: 2, Deducible: true, Quantity: 500, Theta: 0.01},
		{Profile: "p/P02.csv", Evidence: "e/E01.csv", Contributors: 3, Quantity: 62.5, Theta: 0.02, LabKitID: "kit-1"},
		{Profile: "p/P03.csv", Evidence: "e/E01.csv", Contributors: 2, Quantity: 500, Theta: 0.01},
	}
	var ids []int64
	for _, c := range inputs {
		id, err := store.Create(ctx, c)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, store.WriteResult(ctx, ids[0], domain.Result{
		"lr": 12.5,
		"hp": []any{1.0, 2.5},
	}))
	require.NoError(t, store.WriteResult(ctx, ids[1], domain.Result{
		"lr":    int64(3),
		"note":  "ok, checked",
		"bound": math.Inf(1),
	}))

	var buf bytes.Buffer
	rows, err := WriteCSV(ctx, store, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	want := "id,profile,evidence,contributors,deducible,quantity,theta,labkitid,bound,hp,lr,note\n" +
		"1,p/P01.csv,e/E01.csv,2,true,500,0.01,,,1;2.5,12.5,\n" +
		"2,p/P02.csv,e/E01.csv,3,false,62.5,0.02,kit-1,+Inf,,3,\"ok, checked\"\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_Empty(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "cases.db"), sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var buf bytes.Buffer
	rows, err := WriteCSV(context.Background(), store, &buf)
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.Equal(t, "id,profile,evidence,contributors,deducible,quantity,theta,labkitid\n", buf.String())
}

type failingSource struct{ err error }

func (f failingSource) Results(ctx context.Context, fn func(domain.Case) error) error {
	return f.err
}

func TestWriteCSV_SourceError(t *testing.T) {
	boom := errors.New("disk I/O error")
	_, err := WriteCSV(context.Background(), failingSource{err: boom}, &bytes.Buffer{})
	assert.ErrorIs(t, err, boom)
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"text", "text"},
		{[]byte("raw"), "cmF3"},
		{true, "true"},
		{1.25, "1.25"},
		{float32(0.5), "0.5"},
		{int64(-7), "-7"},
		{42, "42"},
		{[]any{int64(1), "a", false}, "1;a;false"},
		{[]any{[]byte{0xde, 0xad}, "b"}, "3q0=;b"},
		{[]string{"x", "y"}, "x;y"},
		{[]float64{0.1, 2}, "0.1;2"},
		{[]int64{}, ""},
		{[]int{4, 5}, "4;5"},
		{[]bool{true}, "true"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in), "%#v", tt.in)
	}
}
