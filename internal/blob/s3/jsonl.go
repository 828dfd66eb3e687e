package s3blob

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

const ndjson = "application/x-ndjson"

// maxLineSize bounds a single JSONL record when reading archives back.
const maxLineSize = 4 << 20

// jsonlEncoder writes one compact JSON value per line.
func jsonlEncoder(buf *bytes.Buffer) *json.Encoder {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return enc
}

// eachLine calls fn for every non-empty line of r.
func eachLine(r io.Reader, fn func([]byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		if err := fn(b); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return sc.Err()
}
