// Package barcode validates and canonicalizes EAN-8, UPC-A and EAN-13
// codes and issues internal EAN-13 codes from a sequence number.
package barcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidBarcode = errors.New("invalid barcode")

type Reason string

const (
	ReasonCharset    Reason = "charset"
	ReasonLength     Reason = "length"
	ReasonSameDigits Reason = "same_digits"
	ReasonChecksum   Reason = "checksum"
)

// Error reports why a code was rejected. It matches ErrInvalidBarcode
// under errors.Is.
type Error struct {
	Input  string
	Reason Reason
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid barcode %q: %s", e.Input, e.Reason)
}

func (e *Error) Is(target error) bool {
	return target == ErrInvalidBarcode
}

type Symbology string

const (
	EAN8  Symbology = "ean8"
	UPCA  Symbology = "upca"
	EAN13 Symbology = "ean13"
)

// Code is a validated barcode in canonical form. UPC-A input is held as
// its zero-prefixed EAN-13 equivalent; Source keeps the detected input
// symbology.
type Code struct {
	Value  string
	Source Symbology
}

func Parse(raw string) (Code, error) {
	code := strings.TrimSpace(raw)
	if code == "" || !allDigits(code) {
		return Code{}, &Error{Input: raw, Reason: ReasonCharset}
	}
	// Repeated-digit input is reported as such whatever its length.
	if strings.Count(code, code[:1]) == len(code) {
		return Code{}, &Error{Input: raw, Reason: ReasonSameDigits}
	}

	var sym Symbology
	switch len(code) {
	case 8:
		sym = EAN8
	case 12:
		sym = UPCA
	case 13:
		sym = EAN13
	default:
		return Code{}, &Error{Input: raw, Reason: ReasonLength}
	}

	if !checksumOK(code) {
		return Code{}, &Error{Input: raw, Reason: ReasonChecksum}
	}

	if sym == UPCA {
		code = "0" + code
		if !checksumOK(code) {
			return Code{}, &Error{Input: raw, Reason: ReasonChecksum}
		}
	}
	return Code{Value: code, Source: sym}, nil
}

// Normalize returns the canonical form of raw or an *Error.
func Normalize(raw string) (string, error) {
	code, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return code.Value, nil
}

// CheckDigit computes the GS1 check digit for a numeric body. Weights
// alternate 3,1,3,... starting from the digit next to the check digit, so
// the same rule serves EAN-8, UPC-A and EAN-13 bodies.
func CheckDigit(body string) (int, error) {
	if body == "" || !allDigits(body) {
		return 0, &Error{Input: body, Reason: ReasonCharset}
	}
	sum := 0
	weight := 3
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * weight
		weight = 4 - weight
	}
	return (10 - sum%10) % 10, nil
}

// InternalEAN13 builds prefix + zero-padded seq + check digit.
func InternalEAN13(prefix string, seq int64) (string, error) {
	if prefix == "" || !allDigits(prefix) || len(prefix) >= 12 {
		return "", fmt.Errorf("internal barcode prefix %q must be 1-11 digits", prefix)
	}
	if seq < 0 {
		return "", fmt.Errorf("internal barcode number %d is negative", seq)
	}
	width := 12 - len(prefix)
	digits := strconv.FormatInt(seq, 10)
	if len(digits) > width {
		return "", fmt.Errorf("internal barcode number %d exceeds %d digits", seq, width)
	}
	body := prefix + strings.Repeat("0", width-len(digits)) + digits
	check, err := CheckDigit(body)
	if err != nil {
		return "", err
	}
	code := body + strconv.Itoa(check)
	if _, err := Parse(code); err != nil {
		return "", err
	}
	return code, nil
}

func checksumOK(code string) bool {
	check, err := CheckDigit(code[:len(code)-1])
	if err != nil {
		return false
	}
	return check == int(code[len(code)-1]-'0')
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
