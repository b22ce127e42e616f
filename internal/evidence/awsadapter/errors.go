// Package awsadapter implements the evidence ports on AWS Textract and
// Rekognition.
package awsadapter

import (
	"errors"

	"github.com/aws/smithy-go"

	"kycverify/internal/evidence"
)

// classify maps an SDK error onto the evidence failure taxonomy.
func classify(source, message string, err error) error {
	category := evidence.ErrorInternal
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ProvisionedThroughputExceededException", "LimitExceededException":
			category = evidence.ErrorRateLimited
		case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException", "InvalidSignatureException":
			category = evidence.ErrorAuthentication
		case "InvalidParameterException", "InvalidImageFormatException", "ImageTooLargeException",
			"BadDocumentException", "UnsupportedDocumentException", "DocumentTooLargeException",
			"InvalidS3ObjectException":
			category = evidence.ErrorBadData
		case "InternalServerError", "InternalServerException", "ServiceUnavailableException":
			category = evidence.ErrorOutage
		}
	}
	return evidence.NewSourceError(category, source, message, err)
}

func f64(p *float32) float64 {
	if p == nil {
		return 0
	}
	return float64(*p)
}

func optF64(p *float32) *float64 {
	if p == nil {
		return nil
	}
	v := float64(*p)
	return &v
}
