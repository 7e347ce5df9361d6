package jsonl

import "io"

// LineOffset is one line's span within a file: byte_offset is the first
// byte of the line, byte_length includes its terminating newline if
// present. Adjacent entries are contiguous: offset[i] + length[i] ==
// offset[i+1].
type LineOffset struct {
	ByteOffset int64
	ByteLength int64
}

// BuildLineIndex makes one linear pass over r, returning the ordered
// sequence of line spans. It does not parse JSON; malformed JSON on a line
// does not affect the index. A file with no trailing newline still yields
// a final entry for its last (unterminated) line.
func BuildLineIndex(r io.Reader) ([]LineOffset, error) {
	reader := NewReader(r, 0)

	var offsets []LineOffset
	var pos int64
	for {
		line, err := reader.Next()
		if err == io.EOF {
			return offsets, nil
		}
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, LineOffset{ByteOffset: pos, ByteLength: int64(line.BytesRead)})
		pos += int64(line.BytesRead)
	}
}
