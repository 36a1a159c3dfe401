package arinc665

import (
	"errors"
	"fmt"
)

// Kind classifies failures of codecs and media set mutations so callers can
// branch on them without matching error strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindFormat
	KindIntegrity
	KindReferentialIntegrity
	KindNameConflict
	KindInvalidReference
)

var (
	// ErrFormat reports a malformed byte layout: truncated buffer, inconsistent
	// length field, unknown file type or version.
	ErrFormat = errors.New("malformed ARINC 665 file")
	// ErrIntegrity reports a structurally valid file whose CRC or check value
	// does not match the content.
	ErrIntegrity = errors.New("invalid ARINC 665 file")
	// ErrReferentialIntegrity reports a mutation that would leave a load or
	// batch pointing at something that no longer exists.
	ErrReferentialIntegrity = errors.New("referential integrity violated")
	ErrNameConflict         = errors.New("name conflict")
	ErrInvalidReference     = errors.New("invalid reference")
)

func (k Kind) String() string {
	switch k {
	case KindFormat:
		return "format"
	case KindIntegrity:
		return "integrity"
	case KindReferentialIntegrity:
		return "referential-integrity"
	case KindNameConflict:
		return "name-conflict"
	case KindInvalidReference:
		return "invalid-reference"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of the first sentinel found in err's chain.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrFormat):
		return KindFormat
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, ErrReferentialIntegrity):
		return KindReferentialIntegrity
	case errors.Is(err, ErrNameConflict):
		return KindNameConflict
	case errors.Is(err, ErrInvalidReference):
		return KindInvalidReference
	default:
		return KindUnknown
	}
}

func FormatErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}

func IntegrityErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...))
}

func ReferentialIntegrityErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrReferentialIntegrity, fmt.Sprintf(format, args...))
}

func NameConflictErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNameConflict, fmt.Sprintf(format, args...))
}

func InvalidReferenceErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidReference, fmt.Sprintf(format, args...))
}
