package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"taskboard/domain"
)

// Queue publishes board activity events to an Azure Storage queue for
// downstream consumers (activity feeds, audit). Delivery is best-effort;
// the API never waits on it.
type Queue struct {
	events *azqueue.QueueClient
}

// NewQueue creates a Queue from the given connection string.
func NewQueue(connStr, queueName string) (*Queue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &Queue{events: q}, nil
}

// Publish enqueues a single activity event as JSON.
func (q *Queue) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = q.events.EnqueueMessage(ctx, string(data), nil)
	return err
}
