package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var ErrMalformedCSV = errors.New("malformed csv")

// ReadCSV parses rows of numbers whose last column is the target. A first
// row that does not parse as numbers is treated as a header.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	var (
		x [][]float64
		y []float64
	)
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedCSV, err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("%w: line %d needs at least one feature and a target", ErrMalformedCSV, line)
		}
		row, err := parseRecord(record)
		if err != nil {
			if line == 1 {
				continue
			}

			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedCSV, line, err)
		}
		x = append(x, row[:len(row)-1])
		y = append(y, row[len(row)-1])
	}

	return New(x, y)
}

func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadCSV(f)
}

func parseRecord(record []string) ([]float64, error) {
	row := make([]float64, len(record))
	for i, field := range record {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}

	return row, nil
}
