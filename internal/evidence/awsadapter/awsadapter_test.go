package awsadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rtypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	ttypes "github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycverify/internal/evidence"
)

var ref = evidence.ObjectRef{Bucket: "kyc-documents-bucket", Key: "verifications/v1/document_front.jpg"}

type fakeTextract struct {
	idOut   *textract.AnalyzeIDOutput
	idErr   error
	docOut  *textract.AnalyzeDocumentOutput
	docErr  error
	docCall int
}

func (f *fakeTextract) AnalyzeID(_ context.Context, in *textract.AnalyzeIDInput, _ ...func(*textract.Options)) (*textract.AnalyzeIDOutput, error) {
	if aws.ToString(in.DocumentPages[0].S3Object.Name) != ref.Key {
		return nil, errors.New("unexpected key")
	}
	return f.idOut, f.idErr
}

func (f *fakeTextract) AnalyzeDocument(_ context.Context, _ *textract.AnalyzeDocumentInput, _ ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error) {
	f.docCall++
	return f.docOut, f.docErr
}

func idField(tag, value string, conf float32) ttypes.IdentityDocumentField {
	return ttypes.IdentityDocumentField{
		Type:           &ttypes.AnalyzeIDDetections{Text: aws.String(tag)},
		ValueDetection: &ttypes.AnalyzeIDDetections{Text: aws.String(value), Confidence: aws.Float32(conf)},
	}
}

func analyzeID(fields ...ttypes.IdentityDocumentField) *textract.AnalyzeIDOutput {
	return &textract.AnalyzeIDOutput{IdentityDocuments: []ttypes.IdentityDocument{{IdentityDocumentFields: fields}}}
}

// formsOutput is one KEY/VALUE pair "SURNAME" -> "LOVELACE" plus a text line.
func formsOutput() *textract.AnalyzeDocumentOutput {
	return &textract.AnalyzeDocumentOutput{Blocks: []ttypes.Block{
		{Id: aws.String("k1"), BlockType: ttypes.BlockTypeKeyValueSet, EntityTypes: []ttypes.EntityType{ttypes.EntityTypeKey},
			Confidence: aws.Float32(91),
			Relationships: []ttypes.Relationship{
				{Type: ttypes.RelationshipTypeValue, Ids: []string{"v1"}},
				{Type: ttypes.RelationshipTypeChild, Ids: []string{"w1"}},
			}},
		{Id: aws.String("v1"), BlockType: ttypes.BlockTypeKeyValueSet, EntityTypes: []ttypes.EntityType{ttypes.EntityTypeValue},
			Relationships: []ttypes.Relationship{{Type: ttypes.RelationshipTypeChild, Ids: []string{"w2"}}}},
		{Id: aws.String("w1"), BlockType: ttypes.BlockTypeWord, Text: aws.String("SURNAME")},
		{Id: aws.String("w2"), BlockType: ttypes.BlockTypeWord, Text: aws.String("LOVELACE")},
		{Id: aws.String("l1"), BlockType: ttypes.BlockTypeLine, Text: aws.String("P<GBRLOVELACE<<ADA<<<<<<<<<<<<<<<<<<<<<<<<<<")},
	}}
}

func newExtractor(f *fakeTextract) *DocumentExtractor {
	return NewDocumentExtractor(f, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExtractUsesAnalyzeIDWhenRich(t *testing.T) {
	f := &fakeTextract{idOut: analyzeID(
		idField("FIRST_NAME", "ADA", 98),
		idField("LAST_NAME", "LOVELACE", 97),
		idField("DOCUMENT_NUMBER", "X1234567", 95),
		idField("MRZ_CODE", "LINE1\nLINE2", 99),
	)}

	ext, err := newExtractor(f).Extract(context.Background(), ref)
	require.NoError(t, err)
	assert.Zero(t, f.docCall)
	require.Len(t, ext.Fields, 3)
	assert.Equal(t, evidence.OCRField{Tag: "FIRST_NAME", Value: "ADA", Confidence: 98}, ext.Fields[0])
	require.NotNil(t, ext.MRZ)
	assert.Equal(t, []string{"LINE1", "LINE2"}, ext.MRZ.Lines)
}

func TestExtractFallsBackWhenSparse(t *testing.T) {
	f := &fakeTextract{
		idOut:  analyzeID(idField("FIRST_NAME", "", 10)),
		docOut: formsOutput(),
	}

	ext, err := newExtractor(f).Extract(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 1, f.docCall)
	require.Len(t, ext.Fields, 1)
	assert.Equal(t, "SURNAME", ext.Fields[0].Tag)
	assert.Equal(t, "LOVELACE", ext.Fields[0].Value)
	assert.InDelta(t, 91, ext.Fields[0].Confidence, 0.01)
	assert.Len(t, ext.Lines, 1)
}

func TestExtractKeepsSparseResultWhenFallbackFails(t *testing.T) {
	f := &fakeTextract{
		idOut:  analyzeID(idField("LAST_NAME", "LOVELACE", 90)),
		docErr: errors.New("boom"),
	}
	ext, err := newExtractor(f).Extract(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, ext.Fields, 1)
}

func TestExtractFailsWhenBothCallsFail(t *testing.T) {
	f := &fakeTextract{
		idErr:  errors.New("analyze id down"),
		docErr: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"},
	}
	_, err := newExtractor(f).Extract(context.Background(), ref)
	require.Error(t, err)
	assert.ErrorIs(t, err, evidence.ErrUnavailable)
	assert.Equal(t, evidence.ErrorRateLimited, evidence.CategoryOf(err))
}

type fakeRekognition struct {
	detect    *rekognition.DetectFacesOutput
	compare   *rekognition.CompareFacesOutput
	err       error
	threshold float32
}

func (f *fakeRekognition) DetectFaces(_ context.Context, in *rekognition.DetectFacesInput, _ ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
	if len(in.Attributes) != 1 || in.Attributes[0] != rtypes.AttributeAll {
		return nil, errors.New("all attributes expected")
	}
	return f.detect, f.err
}

func (f *fakeRekognition) CompareFaces(_ context.Context, in *rekognition.CompareFacesInput, _ ...func(*rekognition.Options)) (*rekognition.CompareFacesOutput, error) {
	f.threshold = aws.ToFloat32(in.SimilarityThreshold)
	return f.compare, f.err
}

func TestDetectMapsQuality(t *testing.T) {
	f := &fakeRekognition{detect: &rekognition.DetectFacesOutput{FaceDetails: []rtypes.FaceDetail{{
		Confidence: aws.Float32(99.5),
		Quality:    &rtypes.ImageQuality{Brightness: aws.Float32(60), Sharpness: aws.Float32(85)},
		EyesOpen:   &rtypes.EyeOpen{Value: true, Confidence: aws.Float32(95)},
		Pose:       &rtypes.Pose{Pitch: aws.Float32(1), Roll: aws.Float32(-2), Yaw: aws.Float32(3)},
	}}}}

	faces, err := NewFaces(f).Detect(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	q := faces[0]
	assert.InDelta(t, 60, *q.Brightness, 0.01)
	assert.InDelta(t, 85, *q.Sharpness, 0.01)
	assert.True(t, q.EyesOpen.Value)
	assert.Nil(t, q.MouthOpen)
	assert.InDelta(t, -2, q.Pose.Roll, 0.01)
	assert.InDelta(t, 99.5, *q.DetectionConfidence, 0.01)
}

func TestCompare(t *testing.T) {
	f := &fakeRekognition{compare: &rekognition.CompareFacesOutput{FaceMatches: []rtypes.CompareFacesMatch{{
		Similarity: aws.Float32(97.25),
		Face:       &rtypes.ComparedFace{Confidence: aws.Float32(99.9)},
	}}}}

	cmp, err := NewFaces(f).Compare(context.Background(), ref, ref, 85)
	require.NoError(t, err)
	assert.True(t, cmp.IsMatch)
	assert.InDelta(t, 97.25, cmp.Similarity, 0.01)
	assert.InDelta(t, 85, f.threshold, 0.01)

	f.compare = &rekognition.CompareFacesOutput{}
	cmp, err = NewFaces(f).Compare(context.Background(), ref, ref, 85)
	require.NoError(t, err)
	assert.False(t, cmp.IsMatch)
}

func TestRekognitionErrorsAreClassified(t *testing.T) {
	cases := map[string]evidence.ErrorCategory{
		"InvalidImageFormatException": evidence.ErrorBadData,
		"AccessDeniedException":       evidence.ErrorAuthentication,
		"InternalServerError":         evidence.ErrorOutage,
		"SomethingNew":                evidence.ErrorInternal,
	}
	for code, want := range cases {
		f := &fakeRekognition{err: &smithy.GenericAPIError{Code: code}}
		_, err := NewFaces(f).Detect(context.Background(), ref)
		assert.Equal(t, want, evidence.CategoryOf(err), code)
		assert.ErrorIs(t, err, evidence.ErrUnavailable)
	}
}
