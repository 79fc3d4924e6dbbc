package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// readCSV loads up to limit rows of numbers (all rows when limit <= 0).
// The first row fixes the width; csv.ErrFieldCount reports any row that
// differs.
func readCSV[T int | float32 | float64](path string, limit int) ([][]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.ReuseRecord = true
	r.TrimLeadingSpace = true
	var rows [][]T
	for limit <= 0 || len(rows) < limit {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		row := make([]T, len(fields))
		for col, field := range fields {
			if row[col], err = parseNumber[T](field); err != nil {
				line, _ := r.FieldPos(col)
				return nil, fmt.Errorf("%s:%d column %d: %w", path, line, col+1, err)
			}
		}
		rows = append(rows, row)
	}
	log.Debug().Msgf("Parsed %d CSV rows from %s", len(rows), path)
	return rows, nil
}

func parseNumber[T int | float32 | float64](field string) (T, error) {
	field = strings.TrimSpace(field)
	var out T
	switch p := any(&out).(type) {
	case *int:
		v, err := strconv.Atoi(field)
		*p = v
		return out, err
	case *float32:
		v, err := strconv.ParseFloat(field, 32)
		*p = float32(v)
		return out, err
	default:
		v, err := strconv.ParseFloat(field, 64)
		*any(&out).(*float64) = v
		return out, err
	}
}
