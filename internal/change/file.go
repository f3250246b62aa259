package change

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// WriteTo serialises c as a single JSON document (spec §2 calls the
// wire form "a change file"; grounded on internal/jsonl's
// one-JSON-value-per-line convention, here one change per file since a
// change, unlike an issue, is typically megabytes of Contents and
// warrants its own file rather than a JSONL line).
func (c *Change) WriteTo(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(c)
}

// ReadFrom parses a change file written by WriteTo.
func ReadFrom(r io.Reader) (*Change, error) {
	dec := json.NewDecoder(bufio.NewReaderSize(r, 64*1024))
	var c Change
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("change: decode: %w", err)
	}
	return &c, nil
}

// ReadFile reads and parses the change stored at path.
func ReadFile(path string) (*Change, error) {
	// #nosec G304 - path is supplied by the caller, not untrusted input
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("change: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadFrom(f)
}

// WriteFile serialises c to path, creating or truncating it.
func WriteFile(path string, c *Change) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("change: create %s: %w", path, err)
	}
	defer f.Close()
	return c.WriteTo(f)
}
