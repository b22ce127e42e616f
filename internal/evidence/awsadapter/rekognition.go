package awsadapter

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"kycverify/internal/evidence"
)

const sourceRekognition = "rekognition"

// RekognitionAPI is the subset of the Rekognition client used here.
type RekognitionAPI interface {
	DetectFaces(ctx context.Context, in *rekognition.DetectFacesInput, opts ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
	CompareFaces(ctx context.Context, in *rekognition.CompareFacesInput, opts ...func(*rekognition.Options)) (*rekognition.CompareFacesOutput, error)
}

// Faces implements both FaceDetector and FaceComparer.
type Faces struct {
	client RekognitionAPI
}

func NewFaces(client RekognitionAPI) *Faces {
	return &Faces{client: client}
}

func (f *Faces) Detect(ctx context.Context, ref evidence.ObjectRef) ([]evidence.FaceQuality, error) {
	out, err := f.client.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      image(ref),
		Attributes: []types.Attribute{types.AttributeAll},
	})
	if err != nil {
		return nil, classify(sourceRekognition, "detect faces", err)
	}
	faces := make([]evidence.FaceQuality, 0, len(out.FaceDetails))
	for _, d := range out.FaceDetails {
		faces = append(faces, faceQuality(d))
	}
	return faces, nil
}

// Compare reports the best match of the source face in target. No match above
// threshold is a non-match, not an error.
func (f *Faces) Compare(ctx context.Context, source, target evidence.ObjectRef, threshold float64) (evidence.FaceComparison, error) {
	out, err := f.client.CompareFaces(ctx, &rekognition.CompareFacesInput{
		SourceImage:         image(source),
		TargetImage:         image(target),
		SimilarityThreshold: aws.Float32(float32(threshold)),
	})
	if err != nil {
		return evidence.FaceComparison{}, classify(sourceRekognition, "compare faces", err)
	}
	if len(out.FaceMatches) == 0 {
		return evidence.FaceComparison{}, nil
	}
	best := out.FaceMatches[0]
	cmp := evidence.FaceComparison{IsMatch: true, Similarity: f64(best.Similarity)}
	if best.Face != nil {
		cmp.Confidence = f64(best.Face.Confidence)
	}
	return cmp, nil
}

func faceQuality(d types.FaceDetail) evidence.FaceQuality {
	q := evidence.FaceQuality{DetectionConfidence: optF64(d.Confidence)}
	if d.Quality != nil {
		q.Brightness = optF64(d.Quality.Brightness)
		q.Sharpness = optF64(d.Quality.Sharpness)
	}
	if d.EyesOpen != nil {
		q.EyesOpen = &evidence.Attribute{Value: d.EyesOpen.Value, Confidence: f64(d.EyesOpen.Confidence)}
	}
	if d.MouthOpen != nil {
		q.MouthOpen = &evidence.Attribute{Value: d.MouthOpen.Value, Confidence: f64(d.MouthOpen.Confidence)}
	}
	if d.Pose != nil {
		q.Pose = &evidence.Pose{Pitch: f64(d.Pose.Pitch), Roll: f64(d.Pose.Roll), Yaw: f64(d.Pose.Yaw)}
	}
	return q
}

func image(ref evidence.ObjectRef) *types.Image {
	return &types.Image{S3Object: &types.S3Object{Bucket: aws.String(ref.Bucket), Name: aws.String(ref.Key)}}
}
