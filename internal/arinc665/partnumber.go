package arinc665

import (
	"errors"
	"fmt"
)

const (
	ManufacturerCodeLength  = 3
	CheckCodeLength         = 2
	ProductIdentifierLength = 8
	PartNumberLength        = ManufacturerCodeLength + CheckCodeLength + ProductIdentifierLength
)

var ErrInvalidPartNumber = errors.New("invalid part number")

// PartNumber is an ARINC 665 part number: manufacturer code, check code and
// product identifier, e.g. "PN127ABCDEFGH".
type PartNumber struct {
	ManufacturerCode  string
	ProductIdentifier string
}

func NewPartNumber(manufacturerCode, productIdentifier string) (PartNumber, error) {
	if len(manufacturerCode) != ManufacturerCodeLength {
		return PartNumber{}, fmt.Errorf("%w: manufacturer code %q must have %d characters", ErrInvalidPartNumber, manufacturerCode, ManufacturerCodeLength)
	}
	if len(productIdentifier) != ProductIdentifierLength {
		return PartNumber{}, fmt.Errorf("%w: product identifier %q must have %d characters", ErrInvalidPartNumber, productIdentifier, ProductIdentifierLength)
	}
	return PartNumber{ManufacturerCode: manufacturerCode, ProductIdentifier: productIdentifier}, nil
}

func ParsePartNumber(s string) (PartNumber, error) {
	if len(s) != PartNumberLength {
		return PartNumber{}, fmt.Errorf("%w: %q must have %d characters", ErrInvalidPartNumber, s, PartNumberLength)
	}
	pn := PartNumber{
		ManufacturerCode:  s[:ManufacturerCodeLength],
		ProductIdentifier: s[ManufacturerCodeLength+CheckCodeLength:],
	}
	if got, want := s[ManufacturerCodeLength:ManufacturerCodeLength+CheckCodeLength], pn.CheckCode(); got != want {
		return PartNumber{}, fmt.Errorf("%w: check code %s, calculated %s", ErrInvalidPartNumber, got, want)
	}
	return pn, nil
}

// CheckCode is the XOR over all manufacturer and product identifier bytes.
func (p PartNumber) CheckCode() string {
	var code byte
	for i := 0; i < len(p.ManufacturerCode); i++ {
		code ^= p.ManufacturerCode[i]
	}
	for i := 0; i < len(p.ProductIdentifier); i++ {
		code ^= p.ProductIdentifier[i]
	}
	return fmt.Sprintf("%02X", code)
}

func (p PartNumber) String() string {
	return p.ManufacturerCode + p.CheckCode() + p.ProductIdentifier
}
