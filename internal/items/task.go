package items

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// TypeMaterialize is the asynq task type that creates the item of a new non-standard motor.
const TypeMaterialize = "items:materialize"

// MaterializePayload describes the item to create.
type MaterializePayload struct {
	CreationID    string          `json:"creation_id"`
	ItemCode      string          `json:"item_code"`
	BaseItem      string          `json:"base_item"`
	ItemGroup     string          `json:"item_group"`
	Brand         string          `json:"brand"`
	FrameSize     *int            `json:"frame_size,omitempty"`
	Flameproof    bool            `json:"is_flameproof"`
	ValuationRate decimal.Decimal `json:"valuation_rate"`
	Description   string          `json:"description"`
}

// NewMaterializeTask encodes p as an asynq task. The task id is the item code
// so a code is never queued twice while a task for it is pending.
func NewMaterializeTask(p MaterializePayload, opts ...asynq.Option) (*asynq.Task, error) {
	if p.ItemCode == "" {
		return nil, errors.New("items: item code is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("items: encode payload: %w", err)
	}
	opts = append([]asynq.Option{asynq.TaskID(TypeMaterialize + ":" + p.ItemCode)}, opts...)
	return asynq.NewTask(TypeMaterialize, data, opts...), nil
}

// DecodeMaterializePayload reads the payload of a TypeMaterialize task.
func DecodeMaterializePayload(t *asynq.Task) (MaterializePayload, error) {
	var p MaterializePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return MaterializePayload{}, fmt.Errorf("items: decode payload: %w", err)
	}
	return p, nil
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler queues materialisation tasks.
type Scheduler struct {
	Client   TaskEnqueuer
	Queue    string
	MaxRetry int
}

// Schedule queues p. A task already pending for the same item code is not an error.
func (s Scheduler) Schedule(ctx context.Context, p MaterializePayload) error {
	if s.Client == nil {
		return errors.New("items: task client not configured")
	}
	var opts []asynq.Option
	if s.Queue != "" {
		opts = append(opts, asynq.Queue(s.Queue))
	}
	if s.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(s.MaxRetry))
	}
	task, err := NewMaterializeTask(p, opts...)
	if err != nil {
		return err
	}
	if _, err := s.Client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("items: enqueue materialize %s: %w", p.ItemCode, err)
	}
	return nil
}
