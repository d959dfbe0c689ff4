package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/blobnode/pkg/store/file"
)

// Code classifies a fault crossing the service boundary. Adapters translate
// codes onto their wire status values; nothing leaves the service without
// one.
type Code int

const (
	// CodeInvalidArgument marks protocol violations: malformed references,
	// out-of-order upload units, unknown procedures.
	CodeInvalidArgument Code = iota + 1

	// CodeNotFound marks a resolved path with no file behind it.
	CodeNotFound

	// CodeNoSpace marks capacity exhaustion of the storage volume, so
	// callers can back off instead of retrying immediately.
	CodeNoSpace

	// CodeCancelled marks caller-initiated aborts and deadline expiry.
	CodeCancelled

	// CodeInternal marks everything else: unexpected I/O failures, bugs.
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeNotFound:
		return "not_found"
	case CodeNoSpace:
		return "no_space"
	case CodeCancelled:
		return "cancelled"
	case CodeInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a fault with a classification code. Use Errorf to build one and
// CodeOf to read the code back through wrapping layers.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a classified fault. The format string supports %w.
func Errorf(code Code, format string, args ...any) error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the classification of err. Unclassified errors are
// resolved by inspecting the chain: context cancellation, store sentinels,
// and as a last resort a capacity-exhaustion message heuristic for errors
// that bypassed the store's errno mapping. Anything unrecognized is
// internal.
func CodeOf(err error) Code {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	case errors.Is(err, file.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, file.ErrNoSpace):
		return CodeNoSpace
	}

	if looksLikeNoSpace(err) {
		return CodeNoSpace
	}

	return CodeInternal
}

// looksLikeNoSpace is the fallback classifier for capacity failures that
// arrive without an inspectable OS error code. Message sniffing is fragile;
// the fs store maps ENOSPC and EDQUOT onto file.ErrNoSpace long before this
// runs, so this only catches errors from exotic sources.
func looksLikeNoSpace(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "quota exceeded")
}
