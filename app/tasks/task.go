package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeConvert TaskType = "convert"
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetURL() string
	Start()
	GetDuration() time.Duration
	Done() <-chan struct{}
}

type Task struct {
	ID        string
	Type      TaskType
	URL       string
	StartedAt *time.Time
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetURL() string {
	return t.URL
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func NewTask(taskType TaskType, url string) Task {
	return Task{
		ID:   uuid.NewString(),
		Type: taskType,
		URL:  url,
	}
}
