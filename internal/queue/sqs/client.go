package sqs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	envConfig "github.com/geniusdynamics/alumate-sub022/internal/config"
	"github.com/geniusdynamics/alumate-sub022/internal/domain"
)

// Client publishes high-value conversion alerts to SQS.
type Client struct {
	client *sqs.Client
	config envConfig.SQS
	log    *zap.Logger
}

// NewClient creates a new SQS alert publisher.
func NewClient(ctx context.Context, cfg envConfig.SQS, log *zap.Logger) (*Client, error) {
	configOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	var clientOpts []func(*sqs.Options)

	// Configure for local development with ElasticMQ
	if cfg.Endpoint != "" {
		log.Info("Configuring SQS for local development",
			zap.String("endpoint", cfg.Endpoint))
		configOpts = append(configOpts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))

		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	sqsClient := sqs.NewFromConfig(awsCfg, clientOpts...)

	log.Info("SQS alert publisher created",
		zap.String("region", cfg.Region),
		zap.String("queue_url", cfg.QueueURL))

	return &Client{
		client: sqsClient,
		config: cfg,
		log:    log,
	}, nil
}

// PublishHighValueConversion sends an advisory alert message for a conversion
// whose value crossed the configured threshold.
func (c *Client) PublishHighValueConversion(ctx context.Context, conversion *domain.Conversion, threshold float64) error {
	messageBody := map[string]any{
		"alert":         "high_value_conversion",
		"conversion_id": conversion.ID,
		"test_id":       conversion.TestID,
		"variant_id":    conversion.VariantID,
		"goal_id":       conversion.GoalID,
		"value":         conversion.Value,
		"threshold":     threshold,
		"converted_at":  conversion.ConvertedAt,
	}

	bodyJSON, err := json.Marshal(messageBody)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	_, err = c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.config.QueueURL),
		MessageBody: aws.String(string(bodyJSON)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"Alert": {
				DataType:    aws.String("String"),
				StringValue: aws.String("high_value_conversion"),
			},
			"TestId": {
				DataType:    aws.String("String"),
				StringValue: aws.String(conversion.TestID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send alert to SQS: %w", err)
	}

	c.log.Info("High-value conversion alert published",
		zap.String("conversion_id", conversion.ID),
		zap.String("test_id", conversion.TestID),
		zap.Float64("value", conversion.Value))

	return nil
}
