package arinc665

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	MinMediumNumber = 1
	MaxMediumNumber = 255
)

var ErrMediumNumberRange = errors.New("medium number out of range 1..255")

// MediumNumber identifies a medium within a media set. The zero value is not a
// valid medium number.
type MediumNumber uint8

func NewMediumNumber(n int) (MediumNumber, error) {
	if n < MinMediumNumber || n > MaxMediumNumber {
		return 0, fmt.Errorf("%w: %d", ErrMediumNumberRange, n)
	}
	return MediumNumber(n), nil
}

// MustMediumNumber is NewMediumNumber for constants known to be in range.
func MustMediumNumber(n int) MediumNumber {
	m, err := NewMediumNumber(n)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseMediumNumber accepts the canonical "007" form as well as "7".
func ParseMediumNumber(s string) (MediumNumber, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse medium number %q: %w", s, err)
	}
	return NewMediumNumber(n)
}

func (m MediumNumber) Valid() bool {
	return m >= MinMediumNumber
}

func (m MediumNumber) Int() int {
	return int(m)
}

func (m MediumNumber) String() string {
	return fmt.Sprintf("%03d", uint8(m))
}

func (m MediumNumber) Next() (MediumNumber, error) {
	return m.Add(1)
}

func (m MediumNumber) Prev() (MediumNumber, error) {
	return m.Add(-1)
}

func (m MediumNumber) Add(n int) (MediumNumber, error) {
	return NewMediumNumber(int(m) + n)
}

// MarshalText renders the canonical three digit form.
func (m MediumNumber) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MediumNumber) UnmarshalText(b []byte) error {
	v, err := ParseMediumNumber(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
