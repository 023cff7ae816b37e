package core

// streaming.go prepares raw upload bytes for the CSV reader.
//
// Spreadsheet exports from Windows tools arrive in several encodings:
//   - UTF-8 with a BOM (Excel "CSV UTF-8")
//   - UTF-16 LE/BE with a BOM (Excel "Unicode Text")
//   - Windows-1252 (legacy "CSV" export)
//
// textReader detects which one applies and returns a UTF-8 reader.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// textReader returns a UTF-8 reader over data, decoding UTF-16 and
// Windows-1252 input and dropping a UTF-8 BOM.
func textReader(data []byte) io.Reader {
	switch {
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		return transform.NewReader(bytes.NewReader(data), dec)
	case utf8.Valid(data):
		return NewBOMSkippingReader(bytes.NewReader(data))
	default:
		return transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder())
	}
}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	reader  io.Reader
	checked bool
	pending []byte // bytes read during the BOM check that belong to the content
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. The first call consumes up to three bytes to
// look for the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if !r.checked {
		r.checked = true

		var buf [3]byte
		n, err := io.ReadFull(r.reader, buf[:])
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if n < 3 || !bytes.Equal(buf[:], bomUTF8) {
			r.pending = append(r.pending, buf[:n]...)
		}
	}

	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}

	return r.reader.Read(p)
}

// ReadLimited reads all of r, failing with ErrFileTooLarge once more than
// limit bytes have been read. A limit of 0 or less disables the check.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, limit)
	}
	return data, nil
}
