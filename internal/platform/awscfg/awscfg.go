// Package awscfg loads the shared AWS SDK configuration.
package awscfg

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"kycverify/internal/platform/config"
)

// Load resolves credentials from the default chain for the configured region.
func Load(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		return aws.Config{}, fmt.Errorf("aws: region required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("aws: load config: %w", err)
	}
	return awsCfg, nil
}
