package aws

import (
	"context"

	"attendance.service/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/rs/zerolog/log"
)

// NewAWSConfig creates a new AWS configuration, pointing to LocalStack in
// local development when an endpoint is configured.
func NewAWSConfig(ctx context.Context, appConfig config.Config) (aws.Config, error) {
	if appConfig.IsLocalDev && appConfig.AWSEndpoint != "" {
		log.Info().Str("endpoint", appConfig.AWSEndpoint).Msg("Local development mode, routing AWS calls to LocalStack")

		cfg, err := awsConfig.LoadDefaultConfig(ctx,
			awsConfig.WithRegion(appConfig.AWSRegion),
			awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		)
		if err != nil {
			return aws.Config{}, err
		}
		cfg.BaseEndpoint = aws.String(appConfig.AWSEndpoint)
		return cfg, nil
	}

	// Standard credential chain, e.g. an IAM role for the service account.
	return awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(appConfig.AWSRegion))
}
