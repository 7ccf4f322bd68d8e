package dataset_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/absmach/robustfl/pkg/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	t.Parallel()
	cases := []struct {
		desc  string
		input string
		x     [][]float64
		y     []float64
		err   error
	}{
		{
			desc:  "with header",
			input: "x1,x2,y\n1,2,3\n4,5,6\n",
			x:     [][]float64{{1, 2}, {4, 5}},
			y:     []float64{3, 6},
		},
		{
			desc:  "without header and with comments",
			input: "# generated\n1, 2\n3, 4\n",
			x:     [][]float64{{1}, {3}},
			y:     []float64{2, 4},
		},
		{
			desc:  "bad number after header",
			input: "x,y\n1,2\n1,abc\n",
			err:   dataset.ErrMalformedCSV,
		},
		{
			desc:  "single column",
			input: "1\n2\n",
			err:   dataset.ErrMalformedCSV,
		},
		{
			desc:  "ragged rows",
			input: "1,2,3\n1,2\n",
			err:   dataset.ErrMalformedCSV,
		},
		{
			desc:  "header only",
			input: "x,y\n",
			err:   dataset.ErrEmpty,
		},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			d, err := dataset.ReadCSV(strings.NewReader(tc.input))
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.x, d.X)
			assert.Equal(t, tc.y, d.Y)
		})
	}
}

func TestLoadCSV(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("0,1\n1,3\n"), 0o600))

	d, err := dataset.LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, 1, d.NumFeatures())

	_, err = dataset.LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
