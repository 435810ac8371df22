// Package sns sends reminders as transactional SMS through AWS SNS.
package sns

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Notifier struct {
	client  publisher
	timeout time.Duration
}

func NewNotifier(ctx context.Context, region string, timeout time.Duration) (*Notifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Notifier{client: sns.NewFromConfig(cfg), timeout: timeout}, nil
}

// Send publishes message to the E.164 phone number destination; the receipt is the SNS MessageId.
func (n *Notifier) Send(ctx context.Context, destination, message string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	out, err := n.client.Publish(cctx, &sns.PublishInput{
		PhoneNumber: aws.String(destination),
		Message:     aws.String(message),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("sns publish failed: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
