package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Load for a document that was never written.
	ErrNotFound = errors.New("document not found")

	// ErrIO matches any *IOError.
	ErrIO = errors.New("storage unavailable")

	// ErrCorrupt matches any *CorruptError.
	ErrCorrupt = errors.New("stored document is corrupt")
)

// IOError reports that the backing storage could not be reached or written.
type IOError struct {
	Op  string
	Doc Doc
	Err error
}

func (e *IOError) Error() string {
	if e.Doc != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Doc, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// CorruptError reports a stored document that is not valid JSON for its type.
type CorruptError struct {
	Doc Doc
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt %s document: %v", e.Doc, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

// Decode unmarshals a stored document into v, turning parse failures into a
// *CorruptError.
func Decode(doc Doc, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &CorruptError{Doc: doc, Err: err}
	}
	return nil
}

// Encode marshals v as an indented document body.
func Encode(doc Doc, v any) (Record, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal %s: %w", doc, err)
	}
	return Record{Doc: doc, Data: data}, nil
}
