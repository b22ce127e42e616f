package evidence

import "context"

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// ObjectRef addresses a stored image.
type ObjectRef struct {
	Bucket string
	Key    string
}

// Extraction is the document extractor's raw output.
type Extraction struct {
	Fields []OCRField
	// MRZ is set when the extractor reports a dedicated machine-readable zone.
	MRZ *MRZBlock
	// Lines holds free text lines; MRZ lines are recovered from these when MRZ is nil.
	Lines []string
}

// DocumentExtractor reads identity fields from a document image.
type DocumentExtractor interface {
	Extract(ctx context.Context, document ObjectRef) (Extraction, error)
}

// FaceDetector reports every face found in an image.
type FaceDetector interface {
	Detect(ctx context.Context, image ObjectRef) ([]FaceQuality, error)
}

// FaceComparer compares the largest face of source against target.
type FaceComparer interface {
	Compare(ctx context.Context, source, target ObjectRef, threshold float64) (FaceComparison, error)
}

// ObjectStorage stores submitted images under opaque keys.
type ObjectStorage interface {
	Put(ctx context.Context, key, contentType string, body []byte) (ObjectRef, error)
	Get(ctx context.Context, ref ObjectRef) ([]byte, error)
}
