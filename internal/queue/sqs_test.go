package queue

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.ReceiveMessageOutput)
	return out, args.Error(1)
}

func (m *mockSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, in)
	return &sqs.DeleteMessageOutput{}, args.Error(0)
}

func (m *mockSQS) ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	args := m.Called(ctx, in)
	return &sqs.ChangeMessageVisibilityOutput{}, args.Error(0)
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, in)
	return &sqs.SendMessageOutput{}, args.Error(0)
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123/uploads"

func TestSQSTransport_Receive(t *testing.T) {
	api := &mockSQS{}
	api.On("ReceiveMessage", mock.Anything, mock.MatchedBy(func(in *sqs.ReceiveMessageInput) bool {
		return aws.ToString(in.QueueUrl) == testQueueURL && in.MaxNumberOfMessages == 10 && in.WaitTimeSeconds == 20
	})).Return(&sqs.ReceiveMessageOutput{Messages: []types.Message{{
		MessageId:     aws.String("m-1"),
		Body:          aws.String(`{"Records":[]}`),
		ReceiptHandle: aws.String("rh-1"),
		Attributes:    map[string]string{"ApproximateReceiveCount": "3"},
		MessageAttributes: map[string]types.MessageAttributeValue{
			"traceparent": {DataType: aws.String("String"), StringValue: aws.String("00-abc-def-01")},
		},
	}}}, nil)

	tr := NewSQSTransportWithClient(api, "uploads", testQueueURL)
	msgs, err := tr.Receive(context.Background(), 10, 20*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, "m-1", msgs[0].ID)
	assert.Equal(t, "uploads", msgs[0].Queue)
	assert.Equal(t, "rh-1", msgs[0].ReceiptHandle)
	assert.Equal(t, 3, msgs[0].ReceiveCount)
	assert.Equal(t, "00-abc-def-01", msgs[0].Attributes["traceparent"])
	api.AssertExpectations(t)
}

func TestSQSTransport_ChangeVisibilityZero(t *testing.T) {
	api := &mockSQS{}
	api.On("ChangeMessageVisibility", mock.Anything, mock.MatchedBy(func(in *sqs.ChangeMessageVisibilityInput) bool {
		return aws.ToString(in.ReceiptHandle) == "rh-1" && in.VisibilityTimeout == 0
	})).Return(nil)

	tr := NewSQSTransportWithClient(api, "uploads", testQueueURL)
	require.NoError(t, tr.ChangeVisibility(context.Background(), Message{ID: "m-1", ReceiptHandle: "rh-1"}, 0))
	api.AssertExpectations(t)
}

func TestSQSTransport_DeleteAndRelease(t *testing.T) {
	api := &mockSQS{}
	api.On("DeleteMessage", mock.Anything, mock.Anything).Return(nil).Once()

	tr := NewSQSTransportWithClient(api, "uploads", testQueueURL)
	m := Message{ID: "m-1", ReceiptHandle: "rh-1"}
	require.NoError(t, tr.Release(context.Background(), m))
	require.NoError(t, tr.Delete(context.Background(), m))

	api.AssertNumberOfCalls(t, "DeleteMessage", 1)
}

func TestSQSTransport_Send(t *testing.T) {
	api := &mockSQS{}
	api.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return aws.ToString(in.MessageBody) == "{}" && aws.ToString(in.MessageAttributes["traceparent"].StringValue) == "tp"
	})).Return(nil)

	tr := NewSQSTransportWithClient(api, "uploads", testQueueURL)
	require.NoError(t, tr.Send(context.Background(), []byte("{}"), map[string]string{"traceparent": "tp"}))
	api.AssertExpectations(t)
}
