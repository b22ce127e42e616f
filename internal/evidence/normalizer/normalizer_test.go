package normalizer

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"kycverify/internal/evidence"
	"kycverify/internal/evidence/mrz"
)

type NormalizerSuite struct {
	suite.Suite
	n   *Normalizer
	ctx context.Context
}

func TestNormalizerSuite(t *testing.T) {
	suite.Run(t, new(NormalizerSuite))
}

func (s *NormalizerSuite) SetupTest() {
	s.n = New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.ctx = context.Background()
}

func pad(line string) string {
	return line + strings.Repeat("<", mrz.LineLength-len(line))
}

// validTD3 is the ICAO 9303 specimen passport.
func validTD3() evidence.MRZBlock {
	return evidence.MRZBlock{Lines: []string{
		pad("P<UTOERIKSSON<<ANNA<MARIA"),
		"L898902C36UTO7408122F1204159ZE184226B<<<<<10",
	}}
}

func (s *NormalizerSuite) TestOCRConfidenceThreshold() {
	id := s.n.Normalize(s.ctx, []evidence.Evidence{
		evidence.OCRField{Tag: "FIRST_NAME", Value: "Aigerim", Confidence: 71},
		evidence.OCRField{Tag: "LAST_NAME", Value: "Nurlanova", Confidence: 70},
		evidence.OCRField{Tag: "DOCUMENT_NUMBER", Value: "   ", Confidence: 99},
	})

	s.Equal("Aigerim", id.FirstName)
	s.Empty(id.LastName, "confidence of exactly 70 is rejected")
	s.Empty(id.DocumentNumber, "blank values are rejected")
}

func (s *NormalizerSuite) TestMultilingualSynonyms() {
	id := s.n.Normalize(s.ctx, []evidence.Evidence{
		evidence.OCRField{Tag: "ТЕГІ/ФАМИЛИЯ", Value: "ТОКУШЕВ", Confidence: 92},
		evidence.OCRField{Tag: "аты/имя", Value: "ДИАС", Confidence: 90},
		evidence.OCRField{Tag: "ТУҒАН КҮНІ/ДАТА РОЖДЕНИЯ", Value: "20.09.2000", Confidence: 88},
		evidence.OCRField{Tag: "ЖСН / ИИН", Value: "000920551217", Confidence: 95},
		evidence.OCRField{Tag: "Citizenship:", Value: "KAZ", Confidence: 80},
		evidence.OCRField{Tag: "ОТЧЕСТВО", Value: "ЕРЛАНОВИЧ", Confidence: 99},
	})

	s.Equal(Identity{
		FirstName:      "ДИАС",
		LastName:       "ТОКУШЕВ",
		DateOfBirth:    "2000-09-20",
		DocumentNumber: "000920551217",
		Nationality:    "KAZ",
	}, id)
}

func (s *NormalizerSuite) TestHigherConfidenceWinsForSameTag() {
	id := s.n.Normalize(s.ctx, []evidence.Evidence{
		evidence.OCRField{Tag: "NAME", Value: "JON", Confidence: 75},
		evidence.OCRField{Tag: "GIVEN NAME", Value: "JOHN", Confidence: 96},
		evidence.OCRField{Tag: "FIRST_NAME", Value: "J0HN", Confidence: 80},
	})
	s.Equal("JOHN", id.FirstName)
}

func (s *NormalizerSuite) TestUnparsableDateIsNull() {
	id := s.n.Normalize(s.ctx, []evidence.Evidence{
		evidence.OCRField{Tag: "DOB", Value: "sometime in spring", Confidence: 99},
	})
	s.Empty(id.DateOfBirth)
}

func (s *NormalizerSuite) TestImpossibleDateIsNullInEitherLayout() {
	for _, raw := range []string{"31.02.1990", "1990-02-31", "1990-13-01"} {
		id := s.n.Normalize(s.ctx, []evidence.Evidence{
			evidence.OCRField{Tag: "DOB", Value: raw, Confidence: 99},
		})
		s.Empty(id.DateOfBirth, raw)
	}
}

func (s *NormalizerSuite) TestMRZOverridesOCR() {
	id := s.n.Normalize(s.ctx, []evidence.Evidence{
		evidence.OCRField{Tag: "SURNAME", Value: "ERIKSON", Confidence: 99},
		evidence.OCRField{Tag: "DATE OF BIRTH", Value: "12.08.1974", Confidence: 99},
		validTD3(),
	})

	s.Equal("ERIKSSON", id.LastName)
	s.Equal("ANNA MARIA", id.FirstName)
	s.Equal("L898902C3", id.DocumentNumber)
	s.Equal("UTO", id.Nationality)
	s.Equal("1974-08-12", id.DateOfBirth)
}

func (s *NormalizerSuite) TestManualMRZWinsWhenCheckDigitsFail() {
	block := validTD3()
	l2 := []byte(block.Lines[1])
	l2[9] = '0' // document number check digit
	block.Lines[1] = string(l2)

	id := s.n.Normalize(s.ctx, []evidence.Evidence{
		evidence.OCRField{Tag: "DOCUMENT_NUMBER", Value: "OCR123456", Confidence: 99},
		block,
	})
	s.Equal("L898902C3", id.DocumentNumber)
}

func (s *NormalizerSuite) TestMalformedMRZFallsBackToOCR() {
	id := s.n.Normalize(s.ctx, []evidence.Evidence{
		evidence.OCRField{Tag: "LAST_NAME", Value: "DOE", Confidence: 99},
		evidence.OCRField{Tag: "DOCUMENT_NUMBER", Value: "X1234567", Confidence: 99},
		evidence.MRZBlock{Lines: []string{"P<UTODOE<<JANE"}},
	})
	s.Equal("DOE", id.LastName)
	s.Equal("X1234567", id.DocumentNumber)
	s.Empty(id.FirstName)
}

func (s *NormalizerSuite) TestMRZAsSingleTextBlock() {
	block := validTD3()
	id := s.n.Normalize(s.ctx, []evidence.Evidence{
		evidence.MRZBlock{Lines: []string{block.Lines[0] + "\n" + block.Lines[1]}},
	})
	s.Equal("ERIKSSON", id.LastName)
}

func (s *NormalizerSuite) TestFaceEvidenceIgnored() {
	id := s.n.Normalize(s.ctx, evidence.Bundle{
		Faces:      []evidence.FaceQuality{{Brightness: evidence.Float(60)}},
		Comparison: &evidence.FaceComparison{IsMatch: true, Similarity: 99},
	}.Items())
	s.Equal(Identity{}, id)
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"20.09.2000", "2000-09-20", true},
		{"1990-01-31", "1990-01-31", true},
		{"31.02.2000", "", false},
		{"2000-02-31", "", false},
		{"March 3, 1985", "1985-03-03", true},
		{"", "", false},
		{"not a date", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseDate(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestCanonicalTag(t *testing.T) {
	assert.Equal(t, FieldLastName, CanonicalTag("  family   name "))
	assert.Equal(t, FieldDocumentNumber, CanonicalTag("ИИН"))
	assert.Equal(t, "EYE COLOR", CanonicalTag("eye color"))
}
