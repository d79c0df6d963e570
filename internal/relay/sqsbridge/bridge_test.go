package sqsbridge

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/require"

	"go.relayqueue.dev/internal/mqueue"
)

type fakeSQSClient struct {
	messages []types.Message
	served   bool
	deleted  []string
}

func (f *fakeSQSClient) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.served {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	f.served = true
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQSClient) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestBridgeRelaysMessagesAndAcks(t *testing.T) {
	fake := &fakeSQSClient{messages: []types.Message{
		{MessageId: aws.String("m1"), Body: aws.String(`{"n":1}`), ReceiptHandle: aws.String("r1")},
	}}
	bridge := NewWithClient(fake, Config{QueueURL: "http://example/queue"})

	c := mqueue.CreateNewMessageQueue()
	defer c.CancelAndWait()

	received := make(chan *Delivery, 1)
	h := mqueue.InstallMessageHandler(c.QueueID(), func(_ mqueue.PostID, body *mqueue.Body) {
		d := body.Body1.(*Delivery)
		received <- d
	}, false)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go bridge.Run(ctx, h)

	select {
	case d := <-received:
		require.Equal(t, "m1", d.MessageID)
		require.Equal(t, `{"n":1}`, string(d.Body))
		require.NoError(t, d.Ack(context.Background()))
		require.Equal(t, []string{"r1"}, fake.deleted)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed message")
	}
}
