// Package rowstream incrementally decodes a streaming HTTP response body
// shaped like a N1QL/FTS/CBAS result: a JSON object whose row array can be
// gigabytes long, without ever buffering the whole response in memory.
package rowstream

import (
	"bytes"
	"errors"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// ErrNoMoreRows is returned by NextRow once the rows array has been fully
// consumed; callers then call Metadata.
var ErrNoMoreRows = errors.New("rowstream: no more rows")

const readChunkSize = 32 * 1024

// Scanner pulls a result object's rows out one at a time as raw (but
// whitespace-compacted) JSON bytes, reconstructing everything else into one
// metadata object available once the rows are exhausted.
type Scanner struct {
	r         io.Reader
	tok       *chunker
	rowsField string

	insideRows bool
	exhausted  bool
	readBuf    []byte
	eof        bool

	metaParts [][]byte
}

// NewScanner wraps r, which must yield a single top-level JSON object.
// rowsField names the array whose elements are streamed as rows (e.g.
// "results" for N1QL/CBAS, "hits" for FTS); every other top-level member
// is folded into the metadata object.
func NewScanner(r io.Reader, rowsField string) *Scanner {
	return &Scanner{
		r:         r,
		tok:       newChunker(2),
		rowsField: rowsField,
		readBuf:   make([]byte, readChunkSize),
	}
}

// NextRow returns the next row's raw JSON bytes, ErrNoMoreRows once the
// array has closed and the rest of the body has been read, or the
// underlying read/decode error.
func (s *Scanner) NextRow() ([]byte, error) {
	if s.exhausted {
		return nil, ErrNoMoreRows
	}

	for {
		chunk, ok := s.tok.next()
		if !ok {
			if s.eof {
				s.exhausted = true
				return nil, ErrNoMoreRows
			}
			if err := s.fill(); err != nil {
				if err == io.EOF {
					s.eof = true
					continue
				}
				return nil, err
			}
			continue
		}

		switch {
		case bytes.Equal(chunk, []byte{'{'}), bytes.Equal(chunk, []byte{'}'}):
			// top-level object braces: structural only, not metadata content
			continue
		case isArrayOpenFor(chunk, s.rowsField):
			s.insideRows = true
			continue
		case bytes.Equal(chunk, []byte{']'}) && s.insideRows:
			// rows array closed: keep reading so the members after it still
			// reach metaParts; end of input ends the stream.
			s.insideRows = false
			continue
		case s.insideRows:
			return chunk, nil
		default:
			// A metadata array arrives as `"name":[`, one chunk per element,
			// then a lone `]`: glue its first element and its closing bracket
			// onto the preceding part so Metadata's comma join rebuilds it.
			if n := len(s.metaParts); n > 0 && (bytes.HasSuffix(s.metaParts[n-1], []byte{'['}) || bytes.Equal(chunk, []byte{']'})) {
				s.metaParts[n-1] = append(s.metaParts[n-1], chunk...)
				continue
			}
			s.metaParts = append(s.metaParts, chunk)
		}
	}
}

// Metadata reconstructs and parses every top-level member outside the rows
// array. Only meaningful after NextRow has returned ErrNoMoreRows.
func (s *Scanner) Metadata() (map[string]interface{}, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, part := range s.metaParts {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(part)
	}
	buf.WriteByte('}')

	out := make(map[string]interface{})
	if buf.Len() <= 2 {
		return out, nil
	}
	if err := jsoniter.Unmarshal(buf.Bytes(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scanner) fill() error {
	n, err := s.r.Read(s.readBuf)
	if n > 0 {
		s.tok.push(s.readBuf[:n])
	}
	if err != nil {
		return err
	}
	return nil
}

// isArrayOpenFor reports whether chunk is the array-open token for field,
// either `"field":[` (the field's declared name) or a bare `[` when field
// is empty (caller doesn't care which field owns the array).
func isArrayOpenFor(chunk []byte, field string) bool {
	if len(chunk) == 0 || chunk[len(chunk)-1] != '[' {
		return false
	}
	if field == "" {
		return true
	}
	return bytes.Contains(chunk, []byte(`"`+field+`"`))
}
