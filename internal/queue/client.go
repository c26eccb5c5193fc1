package queue

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// Client wraps the River client configured for the provisioning queue.
type Client struct {
	*river.Client[pgx.Tx]
}

func NewClient(pool *pgxpool.Pool, handler Handler) (*Client, error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, NewProvisionWorker(handler))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			DefaultQueue: {MaxWorkers: 4},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, err
	}

	return &Client{Client: riverClient}, nil
}

// Enqueue hands a work item to the queue. Delivery is at-least-once.
func (c *Client) Enqueue(ctx context.Context, args ProvisionArgs) error {
	_, err := c.Insert(ctx, args, nil)
	return err
}
