package slack

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// EachInArray reads a top-level JSON array from r one element at a time and
// invokes fn with the raw bytes of each element. The reader is never fully
// buffered, so arbitrarily large channel-day files stay at constant memory.
func EachInArray(r io.Reader, fn func(raw json.RawMessage) error) error {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err != nil {
		return errors.Wrap(err, "failed to read array start")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return errors.Errorf("expected JSON array, got %v", tok)
	}

	for decoder.More() {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return errors.Wrap(err, "failed to decode array element")
		}
		if err := fn(raw); err != nil {
			return err
		}
	}

	if _, err := decoder.Token(); err != nil {
		return errors.Wrap(err, "failed to read array end")
	}
	return nil
}

// EachInArrayFile is EachInArray over a file on disk.
func EachInArrayFile(path string, fn func(raw json.RawMessage) error) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	return EachInArray(file, fn)
}
