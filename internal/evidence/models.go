// Package evidence defines the signals gathered for a verification and the
// contracts of the external services that produce them.
//
// Evidence is a closed set of tagged variants. Consumers switch on the
// concrete type and handle every kind explicitly.
package evidence

// Kind tags an evidence variant.
type Kind string

const (
	KindOCRField       Kind = "ocr_field"
	KindMRZ            Kind = "mrz"
	KindFaceQuality    Kind = "face_quality"
	KindFaceComparison Kind = "face_comparison"
)

// Evidence is implemented only by the variants in this package.
type Evidence interface {
	Kind() Kind
	sealed()
}

// OCRField is one extracted document field with the extractor's confidence (0-100).
type OCRField struct {
	Tag        string
	Value      string
	Confidence float64
}

// MRZBlock is the raw machine-readable zone, one entry per printed line.
type MRZBlock struct {
	Lines []string
}

// Attribute is a boolean facial attribute with confidence (0-100).
type Attribute struct {
	Value      bool
	Confidence float64
}

// Pose is head orientation in degrees.
type Pose struct {
	Pitch float64
	Roll  float64
	Yaw   float64
}

// FaceQuality holds quality attributes for one detected face. Nil fields were
// not reported by the detector.
type FaceQuality struct {
	Brightness          *float64
	Sharpness           *float64
	EyesOpen            *Attribute
	MouthOpen           *Attribute
	Pose                *Pose
	DetectionConfidence *float64
}

// FaceComparison is the selfie-versus-document result.
type FaceComparison struct {
	IsMatch    bool
	Similarity float64
	Confidence float64
}

func (OCRField) Kind() Kind       { return KindOCRField }
func (MRZBlock) Kind() Kind       { return KindMRZ }
func (FaceQuality) Kind() Kind    { return KindFaceQuality }
func (FaceComparison) Kind() Kind { return KindFaceComparison }

func (OCRField) sealed()       {}
func (MRZBlock) sealed()       {}
func (FaceQuality) sealed()    {}
func (FaceComparison) sealed() {}

// Empty reports whether the block carries no text.
func (m MRZBlock) Empty() bool {
	for _, l := range m.Lines {
		if l != "" {
			return false
		}
	}
	return true
}

// Bundle is the evidence gathered for one verification. It is built once by
// the gatherer and read-only afterwards.
type Bundle struct {
	Fields     []OCRField
	MRZ        *MRZBlock
	Faces      []FaceQuality
	Comparison *FaceComparison
}

// Items flattens the bundle into tagged variants.
func (b Bundle) Items() []Evidence {
	items := make([]Evidence, 0, len(b.Fields)+len(b.Faces)+2)
	for _, f := range b.Fields {
		items = append(items, f)
	}
	if b.MRZ != nil {
		items = append(items, *b.MRZ)
	}
	for _, f := range b.Faces {
		items = append(items, f)
	}
	if b.Comparison != nil {
		items = append(items, *b.Comparison)
	}
	return items
}

// FaceCount is the number of faces detected in the selfie.
func (b Bundle) FaceCount() int { return len(b.Faces) }

// PrimaryFace returns the first detected face, if any.
func (b Bundle) PrimaryFace() *FaceQuality {
	if len(b.Faces) == 0 {
		return nil
	}
	f := b.Faces[0]
	return &f
}

// Float is a convenience for building optional attributes.
func Float(v float64) *float64 { return &v }
