//go:build integration

package sqsbridge

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/localstack"

	"go.relayqueue.dev/internal/mqueue"
)

func localstackSQSClient(ctx context.Context, t *testing.T, endpoint string) *sqs.Client {
	t.Helper()
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}

// TestBridgeAgainstLocalstack runs the real Bridge (long-poll, receive,
// post, delete-on-ack) against a disposable SQS queue in a localstack
// container rather than the fakeSQSClient the unit test uses.
func TestBridgeAgainstLocalstack(t *testing.T) {
	ctx := context.Background()

	container, err := localstack.Run(ctx, "localstack/localstack:3.0.2")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.PortEndpoint(ctx, "4566/tcp", "http")
	require.NoError(t, err)

	bridge, err := New(ctx, Config{
		Region:          "us-east-1",
		CustomEndpoint:  endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		WaitTimeSeconds: 1,
	})
	require.NoError(t, err)

	client := localstackSQSClient(ctx, t, endpoint)
	created, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String("bridge-integration")})
	require.NoError(t, err)
	bridge.cfg.QueueURL = *created.QueueUrl

	_, err = client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    created.QueueUrl,
		MessageBody: aws.String(`{"targetUrl":"http://example.invalid","payload":"{}"}`),
	})
	require.NoError(t, err)

	c := mqueue.CreateNewMessageQueue()
	defer c.CancelAndWait()

	received := make(chan *Delivery, 1)
	h := mqueue.InstallMessageHandler(c.QueueID(), func(_ mqueue.PostID, body *mqueue.Body) {
		received <- body.Body1.(*Delivery)
	}, false)

	runCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	go bridge.Run(runCtx, h)

	select {
	case d := <-received:
		require.Contains(t, string(d.Body), "example.invalid")
		require.NoError(t, d.Ack(ctx))

		out, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            created.QueueUrl,
			WaitTimeSeconds:     2,
			VisibilityTimeout:   0,
			MaxNumberOfMessages: 10,
		})
		require.NoError(t, err)
		require.Empty(t, out.Messages, "message should have been deleted after ack")
	case <-time.After(20 * time.Second):
		t.Fatal("timed out waiting for localstack-relayed message")
	}
}
