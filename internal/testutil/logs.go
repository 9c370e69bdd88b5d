package testutil

import (
	"bufio"
	"bytes"
	"sync"

	"github.com/goccy/go-json"
)

// LogBuffer collects JSON log lines written by a zerolog logger.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Lines decodes every complete line. Lines that are not JSON objects are
// skipped.
func (b *LogBuffer) Lines() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for sc.Scan() {
		var line map[string]any
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			continue
		}
		out = append(out, line)
	}
	return out
}
