// Package mrz reads passport machine-readable zones (ICAO 9303 TD3: two lines
// of 44 characters).
//
// Two readers are provided. ParseManual extracts fields positionally and
// tolerates bad check digits. ParseTD3 validates structure and every check
// digit; its fields are only trustworthy when Result.Valid is true.
package mrz

import (
	"errors"
	"fmt"
	"strings"
)

const (
	LineLength = 44
	filler     = '<'
)

// ErrMalformed is returned when the block is not two TD3 lines.
var ErrMalformed = errors.New("mrz: malformed TD3 block")

// Fields are the identity values read from an MRZ. Empty means not present.
type Fields struct {
	LastName       string
	FirstName      string
	DocumentNumber string
	Nationality    string
	// DateOfBirth is ISO formatted (YYYY-MM-DD).
	DateOfBirth string
}

// Result is the outcome of a validating parse.
type Result struct {
	Fields
	DocumentCode string
	IssuingState string
	Sex          string
	ExpiryDate   string
	Valid        bool
	// Invalid lists the check digits that failed, e.g. "document_number".
	Invalid []string
}

// SplitLines turns a raw MRZ text block into trimmed non-empty lines.
func SplitLines(block string) []string {
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(block, "\r\n", "\n"), "\n") {
		if l = strings.ToUpper(strings.TrimSpace(l)); l != "" {
			lines = append(lines, strings.ReplaceAll(l, " ", ""))
		}
	}
	return lines
}

func checkShape(lines []string) error {
	if len(lines) != 2 {
		return fmt.Errorf("%w: want 2 lines, got %d", ErrMalformed, len(lines))
	}
	for i, l := range lines {
		if len(l) != LineLength {
			return fmt.Errorf("%w: line %d has %d characters", ErrMalformed, i+1, len(l))
		}
	}
	return nil
}

// ParseManual reads names, document number, nationality and birth date by
// position without validating check digits.
func ParseManual(lines []string) (Fields, error) {
	if err := checkShape(lines); err != nil {
		return Fields{}, err
	}
	var f Fields
	f.LastName, f.FirstName = splitNames(lines[0][5:])

	l2 := lines[1]
	f.DocumentNumber = stripFiller(l2[0:9])
	f.Nationality = stripFiller(l2[10:13])
	if dob, ok := BirthDate(l2[13:19]); ok {
		f.DateOfBirth = dob
	}
	return f, nil
}

// ParseTD3 validates the character set and every check digit.
func ParseTD3(lines []string) (Result, error) {
	if err := checkShape(lines); err != nil {
		return Result{}, err
	}
	for i, l := range lines {
		for _, c := range l {
			if !validChar(c) {
				return Result{}, fmt.Errorf("%w: line %d contains %q", ErrMalformed, i+1, c)
			}
		}
	}

	l1, l2 := lines[0], lines[1]
	r := Result{
		DocumentCode: stripFiller(l1[0:2]),
		IssuingState: stripFiller(l1[2:5]),
		Sex:          stripFiller(l2[20:21]),
	}
	r.LastName, r.FirstName = splitNames(l1[5:])
	r.DocumentNumber = stripFiller(l2[0:9])
	r.Nationality = stripFiller(l2[10:13])
	if dob, ok := BirthDate(l2[13:19]); ok {
		r.DateOfBirth = dob
	}
	if exp, ok := expiryDate(l2[21:27]); ok {
		r.ExpiryDate = exp
	}

	checks := []struct {
		name  string
		data  string
		digit byte
	}{
		{"document_number", l2[0:9], l2[9]},
		{"birth_date", l2[13:19], l2[19]},
		{"expiry_date", l2[21:27], l2[27]},
		{"composite", l2[0:10] + l2[13:20] + l2[21:43], l2[43]},
	}
	for _, c := range checks {
		if CheckDigit(c.data) != c.digit {
			r.Invalid = append(r.Invalid, c.name)
		}
	}
	personal := l2[28:42]
	pd := l2[42]
	emptyPersonal := stripFiller(personal) == "" && (pd == filler || pd == '0')
	if !emptyPersonal && CheckDigit(personal) != pd {
		r.Invalid = append(r.Invalid, "personal_number")
	}
	r.Valid = len(r.Invalid) == 0
	return r, nil
}

// CheckDigit computes the ICAO 7-3-1 weighted check digit.
func CheckDigit(s string) byte {
	weights := [3]int{7, 3, 1}
	sum := 0
	for i := 0; i < len(s); i++ {
		sum += charValue(s[i]) * weights[i%3]
	}
	return byte('0' + sum%10)
}

// BirthDate converts YYMMDD into ISO form. Years below 50 are 20xx.
func BirthDate(yymmdd string) (string, bool) {
	yy, mm, dd, ok := splitYYMMDD(yymmdd)
	if !ok {
		return "", false
	}
	year := 1900 + yy
	if yy < 50 {
		year = 2000 + yy
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, mm, dd), true
}

// Expiry dates are always in the current century.
func expiryDate(yymmdd string) (string, bool) {
	yy, mm, dd, ok := splitYYMMDD(yymmdd)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", 2000+yy, mm, dd), true
}

func splitYYMMDD(s string) (yy, mm, dd int, ok bool) {
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	for i := 0; i < 6; i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, 0, 0, false
		}
	}
	yy = int(s[0]-'0')*10 + int(s[1]-'0')
	mm = int(s[2]-'0')*10 + int(s[3]-'0')
	dd = int(s[4]-'0')*10 + int(s[5]-'0')
	if mm < 1 || mm > 12 || dd < 1 || dd > 31 {
		return 0, 0, 0, false
	}
	return yy, mm, dd, true
}

// splitNames splits the TD3 name field into surname and given names.
// Single fillers inside a component separate words.
func splitNames(block string) (last, first string) {
	parts := strings.SplitN(block, "<<", 2)
	last = stripFiller(parts[0])
	if len(parts) == 2 {
		first = stripFiller(parts[1])
	}
	return last, first
}

func stripFiller(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, string(filler), " ")), " ")
}

func validChar(c rune) bool {
	return c == filler || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z')
}

func charValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	default:
		return 0
	}
}
