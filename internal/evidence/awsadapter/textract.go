package awsadapter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"kycverify/internal/evidence"
)

const (
	sourceTextract = "textract"

	// minIDFields is how many valued AnalyzeID fields make the fallback unnecessary.
	minIDFields = 3

	mrzFieldType = "MRZ_CODE"
)

// TextractAPI is the subset of the Textract client used here.
type TextractAPI interface {
	AnalyzeID(ctx context.Context, in *textract.AnalyzeIDInput, opts ...func(*textract.Options)) (*textract.AnalyzeIDOutput, error)
	AnalyzeDocument(ctx context.Context, in *textract.AnalyzeDocumentInput, opts ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
}

// DocumentExtractor reads identity documents with AnalyzeID and falls back to
// forms analysis when AnalyzeID finds too little.
type DocumentExtractor struct {
	client TextractAPI
	logger *slog.Logger
}

func NewDocumentExtractor(client TextractAPI, logger *slog.Logger) *DocumentExtractor {
	return &DocumentExtractor{client: client, logger: logger}
}

func (d *DocumentExtractor) Extract(ctx context.Context, ref evidence.ObjectRef) (evidence.Extraction, error) {
	idOut, idErr := d.client.AnalyzeID(ctx, &textract.AnalyzeIDInput{
		DocumentPages: []types.Document{{S3Object: s3Object(ref)}},
	})
	var primary evidence.Extraction
	if idErr == nil {
		primary = fromAnalyzeID(idOut)
		if valued(primary.Fields) >= minIDFields {
			return primary, nil
		}
	} else {
		d.logger.WarnContext(ctx, "analyze id failed, falling back to forms analysis",
			"key", ref.Key,
			"error", idErr,
		)
	}

	docOut, err := d.client.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
		Document:     &types.Document{S3Object: s3Object(ref)},
		FeatureTypes: []types.FeatureType{types.FeatureTypeForms, types.FeatureTypeTables},
	})
	if err != nil {
		if idErr == nil {
			// the sparse AnalyzeID result is still evidence
			return primary, nil
		}
		return evidence.Extraction{}, classify(sourceTextract, "analyze document", err)
	}
	fallback := fromAnalyzeDocument(docOut)
	if idErr != nil || valued(fallback.Fields) > valued(primary.Fields) {
		return fallback, nil
	}
	return primary, nil
}

func fromAnalyzeID(out *textract.AnalyzeIDOutput) evidence.Extraction {
	var ext evidence.Extraction
	if out == nil || len(out.IdentityDocuments) == 0 {
		return ext
	}
	doc := out.IdentityDocuments[0]
	for _, f := range doc.IdentityDocumentFields {
		if f.Type == nil || f.ValueDetection == nil {
			continue
		}
		tag := aws.ToString(f.Type.Text)
		value := strings.TrimSpace(aws.ToString(f.ValueDetection.Text))
		if tag == mrzFieldType {
			if value != "" {
				ext.MRZ = &evidence.MRZBlock{Lines: strings.Split(value, "\n")}
			}
			continue
		}
		ext.Fields = append(ext.Fields, evidence.OCRField{
			Tag:        tag,
			Value:      value,
			Confidence: f64(f.ValueDetection.Confidence),
		})
	}
	ext.Lines = lines(doc.Blocks)
	return ext
}

func fromAnalyzeDocument(out *textract.AnalyzeDocumentOutput) evidence.Extraction {
	var ext evidence.Extraction
	if out == nil {
		return ext
	}
	byID := make(map[string]types.Block, len(out.Blocks))
	for _, b := range out.Blocks {
		byID[aws.ToString(b.Id)] = b
	}
	for _, b := range out.Blocks {
		if b.BlockType != types.BlockTypeKeyValueSet || !hasEntity(b, types.EntityTypeKey) {
			continue
		}
		valueID := related(b, types.RelationshipTypeValue)
		if len(valueID) == 0 {
			continue
		}
		key := text(b, byID)
		value := text(byID[valueID[0]], byID)
		if key == "" || value == "" {
			continue
		}
		ext.Fields = append(ext.Fields, evidence.OCRField{
			Tag:        key,
			Value:      value,
			Confidence: f64(b.Confidence),
		})
	}
	ext.Lines = lines(out.Blocks)
	return ext
}

// text joins the WORD children of a block.
func text(b types.Block, byID map[string]types.Block) string {
	var words []string
	for _, childID := range related(b, types.RelationshipTypeChild) {
		child, ok := byID[childID]
		if ok && child.BlockType == types.BlockTypeWord {
			words = append(words, aws.ToString(child.Text))
		}
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

func related(b types.Block, kind types.RelationshipType) []string {
	for _, r := range b.Relationships {
		if r.Type == kind {
			return r.Ids
		}
	}
	return nil
}

func hasEntity(b types.Block, e types.EntityType) bool {
	for _, t := range b.EntityTypes {
		if t == e {
			return true
		}
	}
	return false
}

func lines(blocks []types.Block) []string {
	var out []string
	for _, b := range blocks {
		if b.BlockType == types.BlockTypeLine && b.Text != nil {
			out = append(out, *b.Text)
		}
	}
	return out
}

func valued(fields []evidence.OCRField) int {
	n := 0
	for _, f := range fields {
		if f.Value != "" {
			n++
		}
	}
	return n
}

func s3Object(ref evidence.ObjectRef) *types.S3Object {
	return &types.S3Object{Bucket: aws.String(ref.Bucket), Name: aws.String(ref.Key)}
}
