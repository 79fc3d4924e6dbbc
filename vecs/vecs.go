// Package vecs reads and writes the .fvecs and .ivecs formats used by the
// TEXMEX and Deep1B corpora.
//
// Each row is stored as a little-endian int32 width d followed by d
// little-endian int32 (ivecs) or float32 (fvecs) values.
package vecs

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// ErrFormat is returned for truncated rows, non-positive widths and rows
// whose width differs from the first one.
var ErrFormat = errors.New("malformed vecs file")

// ReadFvecs loads at most limit rows of a .fvecs file. A limit <= 0 loads
// every row.
func ReadFvecs(path string, limit int) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := DecodeFvecs(bufio.NewReaderSize(f, 1<<20), limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// ReadIvecs loads at most limit rows of a .ivecs file. A limit <= 0 loads
// every row.
func ReadIvecs(path string, limit int) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := DecodeIvecs(bufio.NewReaderSize(f, 1<<20), limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// DecodeFvecs reads float rows from r until EOF or limit rows.
func DecodeFvecs(r io.Reader, limit int) ([][]float32, error) {
	var out [][]float32
	err := decode(r, limit, func(raw []uint32) {
		row := make([]float32, len(raw))
		for i, bits := range raw {
			row[i] = math.Float32frombits(bits)
		}
		out = append(out, row)
	})
	return out, err
}

// DecodeIvecs reads integer rows from r until EOF or limit rows.
func DecodeIvecs(r io.Reader, limit int) ([][]int, error) {
	var out [][]int
	err := decode(r, limit, func(raw []uint32) {
		row := make([]int, len(raw))
		for i, bits := range raw {
			row[i] = int(int32(bits))
		}
		out = append(out, row)
	})
	return out, err
}

func decode(r io.Reader, limit int, emit func([]uint32)) error {
	var (
		head  [4]byte
		width = -1
		buf   []byte
		raw   []uint32
	)
	for n := 0; limit <= 0 || n < limit; n++ {
		if _, err := io.ReadFull(r, head[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("row %d: width: %w", n, ErrFormat)
		}
		d := int(int32(binary.LittleEndian.Uint32(head[:])))
		if d <= 0 {
			return fmt.Errorf("row %d: width %d: %w", n, d, ErrFormat)
		}
		if width < 0 {
			width = d
			buf = make([]byte, 4*d)
			raw = make([]uint32, d)
		} else if d != width {
			return fmt.Errorf("row %d: width %d, expected %d: %w", n, d, width, ErrFormat)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("row %d: truncated: %w", n, ErrFormat)
		}
		for i := range raw {
			raw[i] = binary.LittleEndian.Uint32(buf[4*i:])
		}
		emit(raw)
	}
	return nil
}

// EncodeIvecs writes rows to w. Rows may have different widths.
func EncodeIvecs(w io.Writer, rows [][]int) error {
	bw := bufio.NewWriter(w)
	var cell [4]byte
	for i, row := range rows {
		if len(row) == 0 {
			return fmt.Errorf("row %d: empty: %w", i, ErrFormat)
		}
		binary.LittleEndian.PutUint32(cell[:], uint32(int32(len(row))))
		if _, err := bw.Write(cell[:]); err != nil {
			return err
		}
		for _, v := range row {
			binary.LittleEndian.PutUint32(cell[:], uint32(int32(v)))
			if _, err := bw.Write(cell[:]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// EncodeFvecs writes rows to w.
func EncodeFvecs(w io.Writer, rows [][]float32) error {
	bw := bufio.NewWriter(w)
	var cell [4]byte
	for i, row := range rows {
		if len(row) == 0 {
			return fmt.Errorf("row %d: empty: %w", i, ErrFormat)
		}
		binary.LittleEndian.PutUint32(cell[:], uint32(int32(len(row))))
		if _, err := bw.Write(cell[:]); err != nil {
			return err
		}
		for _, v := range row {
			binary.LittleEndian.PutUint32(cell[:], math.Float32bits(v))
			if _, err := bw.Write(cell[:]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteIvecs atomically replaces path with rows. The data goes to a
// temporary file in the same directory that is renamed into place, so a
// crashed writer never leaves a partial table behind.
func WriteIvecs(path string, rows [][]int) error {
	return writeAtomic(path, func(w io.Writer) error { return EncodeIvecs(w, rows) })
}

// WriteFvecs atomically replaces path with rows.
func WriteFvecs(path string, rows [][]float32) error {
	return writeAtomic(path, func(w io.Writer) error { return EncodeFvecs(w, rows) })
}

func writeAtomic(path string, encode func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := encode(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
