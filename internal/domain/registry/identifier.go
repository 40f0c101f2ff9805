package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Identifier errors
var (
	ErrInvalidIdentifier = errors.New("invalid binding identifier format")
)

// BindingID is the identity of a binding: which implementation of which
// contract, contributed by which origin.
type BindingID struct {
	Contract       string
	Implementation string
	Origin         string
}

// String returns the double-colon form: {contract}::{implementation}::{origin}
func (id BindingID) String() string {
	return fmt.Sprintf("%s::%s::%s", id.Contract, id.Implementation, id.Origin)
}

// ParseBindingID parses a double-colon-separated binding identifier.
// Format: {contract}::{implementation}::{origin}
// Example: logging.Sink::acme.StdoutSink::acme-logging
func ParseBindingID(s string) (BindingID, error) {
	if s == "" {
		return BindingID{}, ErrInvalidIdentifier
	}

	parts := strings.Split(s, "::")
	if len(parts) != 3 {
		return BindingID{}, ErrInvalidIdentifier
	}

	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return BindingID{}, ErrInvalidIdentifier
		}
	}

	return BindingID{
		Contract:       parts[0],
		Implementation: parts[1],
		Origin:         parts[2],
	}, nil
}

// validName reports whether s is usable as a contract, implementation or
// origin identifier. The "::" separator is reserved for BindingID.
func validName(s string) bool {
	return strings.TrimSpace(s) != "" && !strings.Contains(s, "::")
}
