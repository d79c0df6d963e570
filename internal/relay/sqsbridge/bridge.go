// Package sqsbridge relays messages from an AWS SQS queue onto a mqueue
// handler, so SQS becomes just another inbound edge feeding the run-loop
// the rest of this repo is built around.
package sqsbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"go.relayqueue.dev/internal/common/metrics"
	"go.relayqueue.dev/internal/mqueue"
)

// ClientAPI is the subset of the SQS client this package calls, so tests
// can substitute a fake.
type ClientAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Config configures a Bridge.
type Config struct {
	QueueURL            string
	Region              string
	WaitTimeSeconds     int32
	VisibilityTimeout   int32
	MaxNumberOfMessages int32

	// CustomEndpoint and static credentials support LocalStack-backed
	// integration tests (see integration_test.go).
	CustomEndpoint  string
	AccessKeyID     string
	SecretAccessKey string
}

func (c *Config) applyDefaults() {
	if c.WaitTimeSeconds == 0 {
		c.WaitTimeSeconds = 20
	}
	if c.VisibilityTimeout == 0 {
		c.VisibilityTimeout = 120
	}
	if c.MaxNumberOfMessages == 0 {
		c.MaxNumberOfMessages = 10
	}
}

// Delivery is what a handler attached via Attach receives in Body.Body1 for
// each SQS message relayed onto the queue.
type Delivery struct {
	MessageID string
	Body      []byte
	Ack       func(ctx context.Context) error
}

// Bridge polls one SQS queue and posts each message onto a mqueue handler.
type Bridge struct {
	client ClientAPI
	cfg    Config
}

// New builds a Bridge, loading AWS credentials the standard way unless
// CustomEndpoint/AccessKeyID/SecretAccessKey request a LocalStack-style
// override.
func New(ctx context.Context, cfg Config) (*Bridge, error) {
	cfg.applyDefaults()

	var awsCfg aws.Config
	var err error
	if cfg.CustomEndpoint != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.CustomEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.CustomEndpoint)
		}
	})

	return &Bridge{client: client, cfg: cfg}, nil
}

// NewWithClient builds a Bridge over an already-constructed client, for
// tests.
func NewWithClient(client ClientAPI, cfg Config) *Bridge {
	cfg.applyDefaults()
	return &Bridge{client: client, cfg: cfg}
}

// Run long-polls the queue and posts each received message to handler as
// an Immediately-timed Delivery, until ctx is cancelled. Intended to run on
// its own goroutine — it never touches handler.Queue's owning goroutine
// directly, only through PostMessage.
func (b *Bridge) Run(ctx context.Context, handler mqueue.HandlerID) error {
	log.Info().Str("queueURL", b.cfg.QueueURL).Msg("sqs bridge starting")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := b.pollOnce(ctx, handler)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.SQSPublishErrors.WithLabelValues(b.cfg.QueueURL, "receive").Inc()
			log.Error().Err(err).Msg("sqs bridge poll failed")
			time.Sleep(time.Second)
			continue
		}
		if n == 0 {
			time.Sleep(time.Second)
		}
	}
}

func (b *Bridge) pollOnce(ctx context.Context, handler mqueue.HandlerID) (int, error) {
	out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(b.cfg.QueueURL),
		MaxNumberOfMessages: b.cfg.MaxNumberOfMessages,
		WaitTimeSeconds:     b.cfg.WaitTimeSeconds,
		VisibilityTimeout:   b.cfg.VisibilityTimeout,
	})
	if err != nil {
		return 0, fmt.Errorf("receive: %w", err)
	}

	for _, m := range out.Messages {
		metrics.SQSMessagesReceived.WithLabelValues(b.cfg.QueueURL).Inc()
		b.postMessage(handler, m)
	}
	return len(out.Messages), nil
}

func (b *Bridge) postMessage(handler mqueue.HandlerID, m types.Message) {
	receipt := aws.ToString(m.ReceiptHandle)
	delivery := &Delivery{
		MessageID: aws.ToString(m.MessageId),
		Body:      []byte(aws.ToString(m.Body)),
		Ack: func(ctx context.Context) error {
			_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(b.cfg.QueueURL),
				ReceiptHandle: aws.String(receipt),
			})
			if err != nil {
				metrics.SQSPublishErrors.WithLabelValues(b.cfg.QueueURL, "delete").Inc()
			}
			return err
		},
	}

	post := mqueue.PostMessage(handler, mqueue.Body{Body1: delivery}, mqueue.ImmediateTiming())
	if post.IsNull() {
		log.Warn().Str("messageId", delivery.MessageID).Msg("sqs bridge: target queue gone, message left unacked")
	}
}
