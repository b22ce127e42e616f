// Package liveness estimates whether a selfie was taken of a live subject
// from face-quality attributes alone.
//
// The score is additive and is not renormalized when attributes are missing:
// an absent attribute simply earns nothing.
package liveness

import (
	"math"

	"kycverify/internal/evidence"
)

const maxScore = 100

// Score returns a 0-100 liveness estimate for the primary face. A nil face scores 0.
func Score(face *evidence.FaceQuality) int {
	if face == nil {
		return 0
	}
	score := brightness(face.Brightness) +
		sharpness(face.Sharpness) +
		eyes(face.EyesOpen) +
		mouth(face.MouthOpen) +
		pose(face.Pose) +
		detection(face.DetectionConfidence)
	return min(score, maxScore)
}

// Flat, over-exposed and dark captures are typical of re-photographed prints.
func brightness(v *float64) int {
	switch {
	case v == nil:
		return 0
	case *v >= 40 && *v <= 85:
		return 20
	case *v >= 30 && *v < 95:
		return 10
	}
	return 0
}

func sharpness(v *float64) int {
	switch {
	case v == nil:
		return 0
	case *v >= 80:
		return 20
	case *v >= 60:
		return 15
	case *v >= 40:
		return 10
	}
	return 0
}

func eyes(a *evidence.Attribute) int {
	switch {
	case a == nil || !a.Value:
		return 0
	case a.Confidence > 90:
		return 15
	}
	return 10
}

func mouth(a *evidence.Attribute) int {
	if a != nil && a.Confidence > 80 {
		return 10
	}
	return 0
}

const frontalDegrees = 15

func pose(p *evidence.Pose) int {
	if p == nil {
		return 0
	}
	frontal := 0
	for _, angle := range []float64{p.Pitch, p.Roll, p.Yaw} {
		if math.Abs(angle) < frontalDegrees {
			frontal++
		}
	}
	switch frontal {
	case 3:
		return 20
	case 2:
		return 15
	case 1:
		return 10
	}
	return 0
}

func detection(v *float64) int {
	switch {
	case v == nil:
		return 0
	case *v >= 99:
		return 15
	case *v >= 95:
		return 10
	case *v >= 90:
		return 5
	}
	return 0
}
