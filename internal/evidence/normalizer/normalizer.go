// Package normalizer reconciles extracted document evidence into canonical
// identity fields.
//
// Precedence per field: manual MRZ read, then checksum-validated MRZ read,
// then OCR fields accepted above the confidence threshold.
package normalizer

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"kycverify/internal/evidence"
	"kycverify/internal/evidence/mrz"
)

// MinOCRConfidence is the exclusive lower bound for trusting an OCR field.
const MinOCRConfidence = 70.0

// Identity holds canonical identity fields. Empty strings are absent values.
type Identity struct {
	FirstName      string
	LastName       string
	DateOfBirth    string
	DocumentNumber string
	Nationality    string
}

// Normalizer turns evidence variants into an Identity.
type Normalizer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

type scored struct {
	value      string
	confidence float64
}

// Normalize reads every OCR field and MRZ block in items. Face evidence is
// accepted and ignored.
func (n *Normalizer) Normalize(ctx context.Context, items []evidence.Evidence) Identity {
	ocr := make(map[string]scored)
	var block *evidence.MRZBlock

	for _, item := range items {
		switch ev := item.(type) {
		case evidence.OCRField:
			n.acceptOCR(ctx, ocr, ev)
		case evidence.MRZBlock:
			if block == nil && !ev.Empty() {
				b := ev
				block = &b
			}
		case evidence.FaceQuality, evidence.FaceComparison:
			// not identity evidence
		default:
			n.logger.WarnContext(ctx, "unknown evidence kind ignored", "kind", item.Kind())
		}
	}

	fromOCR := Identity{
		FirstName:      ocr[FieldFirstName].value,
		LastName:       ocr[FieldLastName].value,
		DateOfBirth:    ocr[FieldDateOfBirth].value,
		DocumentNumber: ocr[FieldDocumentNumber].value,
		Nationality:    ocr[FieldNationality].value,
	}
	if block == nil {
		return fromOCR
	}

	manual, lib, ok := n.readMRZ(ctx, *block)
	if !ok {
		return fromOCR
	}
	return Identity{
		FirstName:      first(manual.FirstName, lib.FirstName, fromOCR.FirstName),
		LastName:       first(manual.LastName, lib.LastName, fromOCR.LastName),
		DateOfBirth:    first(manual.DateOfBirth, lib.DateOfBirth, fromOCR.DateOfBirth),
		DocumentNumber: first(manual.DocumentNumber, lib.DocumentNumber, fromOCR.DocumentNumber),
		Nationality:    first(manual.Nationality, lib.Nationality, fromOCR.Nationality),
	}
}

func (n *Normalizer) acceptOCR(ctx context.Context, ocr map[string]scored, f evidence.OCRField) {
	value := strings.TrimSpace(f.Value)
	if f.Confidence <= MinOCRConfidence || value == "" {
		return
	}
	tag := CanonicalTag(f.Tag)
	if !isCanonical(tag) {
		return
	}
	if tag == FieldDateOfBirth {
		parsed, ok := ParseDate(value)
		if !ok {
			n.logger.DebugContext(ctx, "unparsable date of birth dropped", "tag", f.Tag)
			return
		}
		value = parsed
	}
	if cur, seen := ocr[tag]; seen && cur.confidence >= f.Confidence {
		return
	}
	ocr[tag] = scored{value: value, confidence: f.Confidence}
}

// readMRZ returns the manual read and, when its check digits pass, the
// validated read. ok is false for a malformed block.
func (n *Normalizer) readMRZ(ctx context.Context, block evidence.MRZBlock) (manual, lib mrz.Fields, ok bool) {
	lines := mrz.SplitLines(strings.Join(block.Lines, "\n"))
	manual, err := mrz.ParseManual(lines)
	if err != nil {
		n.logger.DebugContext(ctx, "malformed MRZ ignored", "error", err)
		return mrz.Fields{}, mrz.Fields{}, false
	}
	res, err := mrz.ParseTD3(lines)
	if err != nil {
		n.logger.DebugContext(ctx, "MRZ validation skipped", "error", err)
		return manual, mrz.Fields{}, true
	}
	if !res.Valid {
		n.logger.DebugContext(ctx, "MRZ check digits failed", "invalid", res.Invalid)
		return manual, mrz.Fields{}, true
	}
	return manual, res.Fields, true
}

var ddmmyyyy = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4})$`)
var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseDate normalizes a printed date to YYYY-MM-DD. DD.MM.YYYY is the
// common Kazakh and Russian layout; ISO input passes through unchanged. Dates
// that do not exist on the calendar are rejected in either layout.
func ParseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if m := ddmmyyyy.FindStringSubmatch(s); m != nil {
		return calendarDate(m[3] + "-" + m[2] + "-" + m[1])
	}
	if isoDate.MatchString(s) {
		return calendarDate(s)
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

func calendarDate(iso string) (string, bool) {
	if _, err := time.Parse("2006-01-02", iso); err != nil {
		return "", false
	}
	return iso, true
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
