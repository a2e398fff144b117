package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mutation-ner/pkg/api"
)

const (
	TrialQueue      = "trial_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// TrialTaskPayload dispatches one sweep trial to the agent. The
// hyperparameters are carried in the payload so a requeued trial reruns with
// the same configuration it was sampled with.
type TrialTaskPayload struct {
	SweepId  uuid.UUID
	RunId    uuid.UUID
	RemoteId string
	Params   api.TrialParams
}

type Publisher interface {
	PublishTrialTask(ctx context.Context, payload TrialTaskPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
