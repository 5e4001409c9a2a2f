// Package hlaerr wraps pkg/errors and adds error codes, grouped into a small
// closed set of kinds, so callers can tell argument errors from domain errors
// without matching on message text.
package hlaerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code identifies one failure condition. See the Err* constants.
type Code string

// Kind groups codes by how a caller is expected to react.
type Kind int

const (
	// KindInternal covers uncoded errors and programming mistakes.
	KindInternal Kind = iota
	// KindArgument is a malformed or unsupported option value.
	KindArgument
	// KindUnrecognized is an input that does not exist in, or has no mapping
	// in, the loaded reference tables.
	KindUnrecognized
	// KindData is a missing, corrupt or unfetchable data source.
	KindData
	// KindConflict is a data-quality problem that needs a human to look at it.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "argument"
	case KindUnrecognized:
		return "unrecognized"
	case KindData:
		return "data"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

const (
	ErrInvalidTargetFormat Code = "InvalidTargetFormat"
	ErrInvalidHandleBroad  Code = "InvalidHandleBroad"

	ErrUnrecognizedMolecular   Code = "UnrecognizedMolecularAllele"
	ErrUnrecognizedSerological Code = "UnrecognizedSerologicalAllele"
	ErrInvalidFormat           Code = "InvalidHLAFormat"
	ErrNoSerologicalEquivalent Code = "NoSerologicalEquivalent"
	ErrNoMolecularEquivalents  Code = "NoMolecularEquivalents"

	ErrDataNotFound       Code = "DataNotFound"
	ErrDownloadFailed     Code = "DownloadFailed"
	ErrVersionUnsupported Code = "VersionUnsupported"
	ErrNoData             Code = "NoDataForVersion"
	ErrFetchFailed        Code = "FetchFailed"
	ErrCacheCorrupt       Code = "CacheCorrupt"

	ErrBeadConflict       Code = "BeadAnnotationConflict"
	ErrInconsistentLigand Code = "InconsistentKIRLigand"

	ErrKIRDisabled Code = "KIRDisabled"
	ErrUncoded     Code = "Uncoded"
)

var kinds = map[Code]Kind{
	ErrInvalidTargetFormat: KindArgument,
	ErrInvalidHandleBroad:  KindArgument,

	ErrUnrecognizedMolecular:   KindUnrecognized,
	ErrUnrecognizedSerological: KindUnrecognized,
	ErrInvalidFormat:           KindUnrecognized,
	ErrNoSerologicalEquivalent: KindUnrecognized,
	ErrNoMolecularEquivalents:  KindUnrecognized,

	ErrDataNotFound:       KindData,
	ErrDownloadFailed:     KindData,
	ErrVersionUnsupported: KindData,
	ErrNoData:             KindData,
	ErrFetchFailed:        KindData,
	ErrCacheCorrupt:       KindData,

	ErrBeadConflict:       KindConflict,
	ErrInconsistentLigand: KindConflict,
}

// Kind returns the kind a code belongs to.
func (c Code) Kind() Kind {
	if k, ok := kinds[c]; ok {
		return k
	}
	return KindInternal
}

// New returns a coded error with a stack trace attached.
func New(code Code, message string) error {
	return errors.WithStack(codedError{
		Code:    code,
		Message: message,
	})
}

// Newf is New with a format string.
func Newf(code Code, format string, args ...interface{}) error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap returns a coded error whose cause is err. The message is
// "message: err".
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(codedError{
		Code:    code,
		Message: message + ": " + err.Error(),
		cause:   err,
	})
}

// Is reports whether any error in err's chain carries code target.
func Is(err error, target Code) bool {
	return errors.Is(err, codedError{Code: target})
}

// CodeOf returns the code of the first coded error in err's chain, or
// ErrUncoded.
func CodeOf(err error) Code {
	var ce codedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrUncoded
}

// KindOf returns the kind of err's code.
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}

// IsArgument reports whether err is an argument error.
func IsArgument(err error) bool {
	return err != nil && KindOf(err) == KindArgument
}

// Cause returns the innermost error.
func Cause(err error) error {
	return errors.Cause(err)
}

type codedError struct {
	Code    Code
	Message string
	cause   error
}

func (ce codedError) Error() string {
	return ce.Message
}

func (ce codedError) Unwrap() error {
	return ce.cause
}

func (ce codedError) Is(err error) bool {
	if e, ok := err.(codedError); ok && ce.Code == e.Code {
		return true
	}
	return false
}
