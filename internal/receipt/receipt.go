// Package receipt publishes and processes post-payment receipt tasks.
package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/agency-api/internal/obs"
)

const (
	// TypeReceipt is the asynq task type for payment receipts.
	TypeReceipt = "checkout:receipt"
	// Queue is the asynq queue receipts are enqueued on.
	Queue = "receipts"
)

// Receipt describes one settled payment.
type Receipt struct {
	Provider         string `json:"provider"`
	IntentID         string `json:"intentId"`
	UserID           string `json:"userId,omitempty"`
	AmountMinorUnits int64  `json:"amountMinorUnits"`
	Currency         string `json:"currency"`
	Description      string `json:"description,omitempty"`
	Email            string `json:"email,omitempty"`
}

// Amount renders the amount in major units.
func (r Receipt) Amount() string {
	return decimal.New(r.AmountMinorUnits, -2).StringFixed(2)
}

// Publisher hands receipts to background processing.
type Publisher interface {
	Publish(ctx context.Context, r Receipt) error
}

// NopPublisher drops receipts; used when Redis is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Receipt) error { return nil }

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqPublisher enqueues receipts as asynq tasks.
type AsynqPublisher struct {
	Client   Enqueuer
	MaxRetry int
	Timeout  time.Duration
}

// NewTask encodes r as a receipt task.
func NewTask(r Receipt) (*asynq.Task, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("receipt: encode: %w", err)
	}
	return asynq.NewTask(TypeReceipt, payload), nil
}

// Publish enqueues r once per intent; duplicates are accepted silently.
func (p AsynqPublisher) Publish(ctx context.Context, r Receipt) (err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		obs.ReceiptTasksTotal.WithLabelValues("enqueue", result).Inc()
	}()
	if p.Client == nil {
		return errors.New("receipt: asynq client not configured")
	}
	task, err := NewTask(r)
	if err != nil {
		return err
	}
	retry := p.MaxRetry
	if retry <= 0 {
		retry = 5
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	_, err = p.Client.EnqueueContext(ctx, task,
		asynq.Queue(Queue),
		asynq.TaskID(taskID(r)),
		asynq.MaxRetry(retry),
		asynq.Timeout(timeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

func taskID(r Receipt) string {
	return strings.ToLower(r.Provider) + ":" + r.IntentID
}
