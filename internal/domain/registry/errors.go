package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every typed error below matches exactly one of these with errors.Is.
var (
	ErrMalformedDescriptor = errors.New("malformed descriptor")
	ErrSourceUnreadable    = errors.New("source unreadable")
	ErrResolutionConflict  = errors.New("resolution conflict")
	ErrActivationFailed    = errors.New("activation failed")
)

// MalformedDescriptorError rejects a record whose shape is invalid.
type MalformedDescriptorError struct {
	Origin     string
	Descriptor string // e.g. "binding logging.Sink/acme.Stdout"
	Reason     string
	Err        error // optional cause
}

func (e *MalformedDescriptorError) Error() string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	if e.Descriptor == "" {
		return fmt.Sprintf("malformed descriptor from %s: %s", originOrUnknown(e.Origin), reason)
	}
	return fmt.Sprintf("malformed descriptor %s from %s: %s", e.Descriptor, originOrUnknown(e.Origin), reason)
}

func (e *MalformedDescriptorError) Is(target error) bool {
	return target == ErrMalformedDescriptor
}

func (e *MalformedDescriptorError) Unwrap() error {
	return e.Err
}

// SourceUnreadableError reports a contribution source that could not be read
// or parsed. Origin is the source name or file path.
type SourceUnreadableError struct {
	Origin string
	Err    error
}

func (e *SourceUnreadableError) Error() string {
	return fmt.Sprintf("source %s unreadable: %v", originOrUnknown(e.Origin), e.Err)
}

func (e *SourceUnreadableError) Is(target error) bool {
	return target == ErrSourceUnreadable
}

func (e *SourceUnreadableError) Unwrap() error {
	return e.Err
}

// ConflictKind classifies a ResolutionConflictError.
type ConflictKind string

const (
	// ConflictPriorityTie is an equal-priority tie under single-winner semantics.
	ConflictPriorityTie ConflictKind = "priority-tie"
	// ConflictAmbiguousOrigin is one origin binding a contract twice at the same priority.
	ConflictAmbiguousOrigin ConflictKind = "ambiguous-origin"
	// ConflictConfigKey is an error-on-conflict key supplied with different values.
	ConflictConfigKey ConflictKind = "config-key"
	// ConflictCardinality is a contract declared with different cardinalities.
	ConflictCardinality ConflictKind = "cardinality"
	// ConflictCapability is a contract declared with different capability shapes.
	ConflictCapability ConflictKind = "capability"
)

// ResolutionConflictError names a contract and every origin contending for it.
type ResolutionConflictError struct {
	Contract string
	Kind     ConflictKind
	Key      string // config key for ConflictConfigKey
	Priority int    // tied priority for ConflictPriorityTie and ConflictAmbiguousOrigin
	Origins  []string
}

func (e *ResolutionConflictError) Error() string {
	origins := strings.Join(e.Origins, ", ")
	switch e.Kind {
	case ConflictConfigKey:
		return fmt.Sprintf("resolution conflict on %s: key %q has different values from [%s]", e.Contract, e.Key, origins)
	case ConflictPriorityTie:
		return fmt.Sprintf("resolution conflict on %s: single-winner tie at priority %d between [%s]", e.Contract, e.Priority, origins)
	case ConflictAmbiguousOrigin:
		return fmt.Sprintf("resolution conflict on %s: origin [%s] binds it twice at priority %d", e.Contract, origins, e.Priority)
	default:
		return fmt.Sprintf("resolution conflict on %s (%s) between [%s]", e.Contract, e.Kind, origins)
	}
}

func (e *ResolutionConflictError) Is(target error) bool {
	return target == ErrResolutionConflict
}

// ResolutionErrors is returned by Resolve when at least one conflict was found.
// Conflicts are ordered by contract, then kind, then key.
type ResolutionErrors struct {
	Conflicts []*ResolutionConflictError
}

func (e *ResolutionErrors) Error() string {
	if len(e.Conflicts) == 1 {
		return e.Conflicts[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d resolution conflicts:", len(e.Conflicts))
	for _, c := range e.Conflicts {
		b.WriteString("\n  * ")
		b.WriteString(c.Error())
	}
	return b.String()
}

func (e *ResolutionErrors) Unwrap() []error {
	errs := make([]error, len(e.Conflicts))
	for i, c := range e.Conflicts {
		errs[i] = c
	}
	return errs
}

// ActivationFailedError reports a binding whose implementation could not be instantiated.
type ActivationFailedError struct {
	Binding BindingID
	Err     error
}

func (e *ActivationFailedError) Error() string {
	return fmt.Sprintf("activate %s: %v", e.Binding, e.Err)
}

func (e *ActivationFailedError) Is(target error) bool {
	return target == ErrActivationFailed
}

func (e *ActivationFailedError) Unwrap() error {
	return e.Err
}

func originOrUnknown(origin string) string {
	if origin == "" {
		return "<unknown>"
	}
	return origin
}
