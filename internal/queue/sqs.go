package queue

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

var _ Gateway = (*SQSGateway)(nil)

// SQS caps long polling at 20 seconds and batches at 10 messages.
const (
	sqsMaxWait  = 20 * time.Second
	sqsMaxBatch = 10
)

// SQSClient is the subset of the SQS API the gateway calls.
// *sqs.Client satisfies it; tests pass a fake.
type SQSClient interface {
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	DeleteQueue(ctx context.Context, params *sqs.DeleteQueueInput, optFns ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error)
	PurgeQueue(ctx context.Context, params *sqs.PurgeQueueInput, optFns ...func(*sqs.Options)) (*sqs.PurgeQueueOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	ListQueues(ctx context.Context, params *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error)
}

// SQSConfig holds connection and queue-attribute settings.
type SQSConfig struct {
	Region      string
	AccessKeyID string
	SecretKey   string
	Endpoint    string // LocalStack, ElasticMQ

	Retention   time.Duration // MessageRetentionPeriod
	Visibility  time.Duration // VisibilityTimeout
	ReceiveWait time.Duration // ReceiveMessageWaitTimeSeconds
}

// SQSGateway implements Gateway on Amazon SQS.
type SQSGateway struct {
	client     SQSClient
	retention  time.Duration
	visibility time.Duration
	wait       time.Duration
	now        func() time.Time
}

type SQSOption func(*sqsOptions)

type sqsOptions struct {
	client     SQSClient
	httpClient *http.Client
	now        func() time.Time
}

// WithSQSClient sets a pre-built client. Used by tests with fakes.
func WithSQSClient(client SQSClient) SQSOption {
	return func(o *sqsOptions) {
		o.client = client
	}
}

// WithSQSClock replaces time.Now in queue names.
func WithSQSClock(now func() time.Time) SQSOption {
	return func(o *sqsOptions) {
		o.now = now
	}
}

// WithSQSHTTPClient sets the HTTP client used by the SDK.
func WithSQSHTTPClient(client *http.Client) SQSOption {
	return func(o *sqsOptions) {
		o.httpClient = client
	}
}

func NewSQS(ctx context.Context, cfg SQSConfig, opts ...SQSOption) (*SQSGateway, error) {
	options := &sqsOptions{}
	for _, opt := range opts {
		opt(options)
	}

	client := options.client
	if client == nil {
		if cfg.Region == "" {
			return nil, fmt.Errorf("sqs: region is required")
		}
		awsOptions := []func(*config.LoadOptions) error{
			config.WithRegion(cfg.Region),
		}
		// Static keys when given, otherwise the default chain (env, IAM role).
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}
		if options.httpClient != nil {
			awsOptions = append(awsOptions, config.WithHTTPClient(options.httpClient))
		}

		awsConfig, err := config.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client = sqs.NewFromConfig(awsConfig, func(o *sqs.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		})
	}

	g := &SQSGateway{
		client:     client,
		retention:  cfg.Retention,
		visibility: cfg.Visibility,
		wait:       cfg.ReceiveWait,
		now:        time.Now,
	}
	if options.now != nil {
		g.now = options.now
	}
	if g.retention <= 0 {
		g.retention = 14 * 24 * time.Hour
	}
	if g.visibility <= 0 {
		g.visibility = 30 * time.Second
	}
	if g.wait <= 0 || g.wait > sqsMaxWait {
		g.wait = sqsMaxWait
	}
	return g, nil
}

func (g *SQSGateway) CreateQueue(ctx context.Context, channelName string) (Handle, error) {
	out, err := g.client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(QueueName(channelName, g.now())),
		Attributes: map[string]string{
			string(types.QueueAttributeNameMessageRetentionPeriod):        seconds(g.retention),
			string(types.QueueAttributeNameVisibilityTimeout):             seconds(g.visibility),
			string(types.QueueAttributeNameReceiveMessageWaitTimeSeconds): seconds(g.wait),
		},
	})
	if err != nil {
		return "", classifySQSError(err, "create queue")
	}
	return Handle(aws.ToString(out.QueueUrl)), nil
}

func (g *SQSGateway) DeleteQueue(ctx context.Context, h Handle) error {
	_, err := g.client.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(string(h))})
	return classifySQSError(err, "delete queue")
}

func (g *SQSGateway) PurgeQueue(ctx context.Context, h Handle) error {
	_, err := g.client.PurgeQueue(ctx, &sqs.PurgeQueueInput{QueueUrl: aws.String(string(h))})
	return classifySQSError(err, "purge queue")
}

func (g *SQSGateway) Send(ctx context.Context, h Handle, payload Payload) (string, error) {
	body, err := EncodePayload(payload)
	if err != nil {
		return "", err
	}
	msgType := payload.Type
	if msgType == "" {
		msgType = TypeMessage
	}

	out, err := g.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(string(h)),
		MessageBody: aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"channelId":   stringAttribute(payload.ChannelID),
			"senderId":    stringAttribute(payload.SenderID),
			"messageType": stringAttribute(msgType),
		},
	})
	if err != nil {
		return "", classifySQSError(err, "send")
	}
	return aws.ToString(out.MessageId), nil
}

func (g *SQSGateway) Receive(ctx context.Context, h Handle, max int, wait time.Duration) ([]Delivery, error) {
	if max <= 0 {
		max = 1
	}
	if max > sqsMaxBatch {
		max = sqsMaxBatch
	}
	if wait < 0 {
		wait = 0
	}
	if wait > sqsMaxWait {
		wait = sqsMaxWait
	}

	out, err := g.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(string(h)),
		MaxNumberOfMessages:   int32(max),
		WaitTimeSeconds:       int32(wait / time.Second),
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return []Delivery{}, nil
		}
		return nil, classifySQSError(err, "receive")
	}

	deliveries := make([]Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		deliveries = append(deliveries, Delivery{
			ProviderID:    aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}
	return deliveries, nil
}

func (g *SQSGateway) Ack(ctx context.Context, h Handle, receiptHandle string) error {
	_, err := g.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(string(h)),
		ReceiptHandle: aws.String(receiptHandle),
	})
	return classifySQSError(err, "ack")
}

func (g *SQSGateway) Describe(ctx context.Context, h Handle) (Depth, error) {
	out, err := g.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(string(h)),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
		},
	})
	if err != nil {
		return Depth{}, classifySQSError(err, "describe")
	}
	return Depth{
		Available: parseCount(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]),
		InFlight:  parseCount(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)]),
	}, nil
}

func (g *SQSGateway) Ping(ctx context.Context) error {
	_, err := g.client.ListQueues(ctx, &sqs.ListQueuesInput{MaxResults: aws.Int32(1)})
	return classifySQSError(err, "ping")
}

func stringAttribute(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

func seconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}

func parseCount(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
