package storage

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
)

const (
	counterCollection = "rateLimits"
	counterDoc        = "daily"
	runsCollection    = "runs"
)

// Client stores the quota counter and the run history in Firestore.
type Client struct {
	client *firestore.Client
}

func New(ctx context.Context, projectID string, opts ...option.ClientOption) (*Client, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) counterRef() *firestore.DocumentRef {
	return c.client.Collection(counterCollection).Doc(counterDoc)
}

// Load returns a zero counter when the document does not exist.
func (c *Client) Load(ctx context.Context) (models.RateLimitCounter, error) {
	var counter models.RateLimitCounter
	doc, err := c.counterRef().Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return counter, nil
		}
		return counter, fmt.Errorf("failed to get rate limit counter: %w", err)
	}
	if err := doc.DataTo(&counter); err != nil {
		return models.RateLimitCounter{}, fmt.Errorf("failed to unmarshal rate limit counter: %w", err)
	}
	return counter, nil
}

func (c *Client) Save(ctx context.Context, counter models.RateLimitCounter) error {
	if _, err := c.counterRef().Set(ctx, counter); err != nil {
		return fmt.Errorf("failed to save rate limit counter: %w", err)
	}
	return nil
}

// Increment adds amount to the counter inside a transaction, resetting it
// first when the stored date is not day.
func (c *Client) Increment(ctx context.Context, day string, amount int) (int, error) {
	ref := c.counterRef()
	var result int
	err := c.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var counter models.RateLimitCounter
		doc, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if err := doc.DataTo(&counter); err != nil {
				return err
			}
		}
		if counter.Date != day {
			counter = models.RateLimitCounter{Date: day}
		}
		counter.Count += amount
		result = counter.Count
		return tx.Set(ref, counter)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return result, nil
}

// RecordRun stores a run summary keyed by its run ID.
func (c *Client) RecordRun(ctx context.Context, run models.RunResult) error {
	if _, err := c.client.Collection(runsCollection).Doc(run.RunID).Set(ctx, run); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (c *Client) RecentRuns(ctx context.Context, limit int) ([]models.RunResult, error) {
	iter := c.client.Collection(runsCollection).
		OrderBy("startedAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var runs []models.RunResult
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate runs: %w", err)
		}
		var run models.RunResult
		if err := doc.DataTo(&run); err != nil {
			slog.Warn("Skipping unreadable run record", "id", doc.Ref.ID, "error", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// TrimOldRuns deletes the oldest runs so that at most maxRuns remain.
func (c *Client) TrimOldRuns(ctx context.Context, maxRuns int) error {
	collectionRef := c.client.Collection(runsCollection)

	countSnapshot, err := collectionRef.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get run count for trimming: %w", err)
	}
	countValue, ok := countSnapshot["all"]
	if !ok {
		return fmt.Errorf("count aggregation result for trimming was invalid: 'all' key missing")
	}
	current, err := aggregateCount(countValue)
	if err != nil {
		return err
	}
	if current <= maxRuns {
		return nil
	}

	numToDelete := current - maxRuns
	slog.Info("Trimming run history", "current", current, "max", maxRuns, "deleting", numToDelete)

	iter := collectionRef.
		OrderBy("startedAt", firestore.Asc).
		Limit(numToDelete).
		Documents(ctx)
	defer iter.Stop()

	bulkWriter := c.client.BulkWriter(ctx)
	defer bulkWriter.End()

	deleted := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to iterate runs for trimming: %w", err)
		}
		if _, err := bulkWriter.Delete(doc.Ref); err != nil {
			slog.Warn("Failed to queue run delete", "id", doc.Ref.ID, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		bulkWriter.Flush()
	}
	return nil
}

// aggregateCount reads a count aggregation result, which the client returns
// as *firestorepb.Value (older versions returned int64).
func aggregateCount(v interface{}) (int, error) {
	switch val := v.(type) {
	case int64:
		return int(val), nil
	case *firestorepb.Value:
		return int(val.GetIntegerValue()), nil
	default:
		return 0, fmt.Errorf("count aggregation result has unexpected type %T", v)
	}
}
