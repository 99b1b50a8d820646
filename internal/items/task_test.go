package items

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{ID: "id", Type: task.Type()}, nil
}

func TestMaterializeTaskRoundTrip(t *testing.T) {
	p := samplePayload()
	task, err := NewMaterializeTask(p)
	require.NoError(t, err)
	require.Equal(t, TypeMaterialize, task.Type())

	decoded, err := DecodeMaterializePayload(task)
	require.NoError(t, err)
	require.Equal(t, p.ItemCode, decoded.ItemCode)
	require.True(t, p.ValuationRate.Equal(decoded.ValuationRate))
	require.Equal(t, 160, *decoded.FrameSize)
}

func TestNewMaterializeTaskRequiresCode(t *testing.T) {
	_, err := NewMaterializeTask(MaterializePayload{})
	require.Error(t, err)
}

func TestSchedulerSchedule(t *testing.T) {
	client := &captureEnqueuer{}
	s := Scheduler{Client: client, Queue: "items", MaxRetry: 3}

	require.NoError(t, s.Schedule(context.Background(), samplePayload()))
	require.Len(t, client.tasks, 1)
	require.Equal(t, TypeMaterialize, client.tasks[0].Type())
}

func TestSchedulerTreatsDuplicateAsScheduled(t *testing.T) {
	s := Scheduler{Client: &captureEnqueuer{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, s.Schedule(context.Background(), samplePayload()))

	boom := errors.New("redis down")
	s = Scheduler{Client: &captureEnqueuer{err: boom}}
	require.ErrorIs(t, s.Schedule(context.Background(), samplePayload()), boom)

	require.Error(t, Scheduler{}.Schedule(context.Background(), samplePayload()))
}
