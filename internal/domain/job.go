package domain

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// JobKind tags the payload type of a queued job.
type JobKind string

const (
	JobKindIndexing    JobKind = "indexing"
	JobKindRemoval     JobKind = "removal"
	JobKindAliasSwitch JobKind = "alias-switch"
)

// Job is a unit of work carried by a queue message.
type Job interface {
	Kind() JobKind
	// JobID is a random id used for logging and tracing only.
	JobID() string
	// Label is a human readable description of the job.
	Label() string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewJobID returns a fresh job id.
func NewJobID() string {
	return uuid.NewString()
}

// IndexingJob writes every referenced record into the index generation
// identified by IndexPostfix. An empty postfix writes through the alias.
type IndexingJob struct {
	ID              string            `json:"id" validate:"required,uuid"`
	IndexPostfix    string            `json:"indexPostfix" validate:"omitempty,numeric"`
	TargetWorkspace string            `json:"targetWorkspace,omitempty"`
	Nodes           []RecordReference `json:"nodes" validate:"required,min=1,dive"`
}

// NewIndexingJob builds a validated indexing job.
func NewIndexingJob(indexPostfix, targetWorkspace string, nodes []RecordReference) (*IndexingJob, error) {
	job := &IndexingJob{
		ID:              NewJobID(),
		IndexPostfix:    indexPostfix,
		TargetWorkspace: targetWorkspace,
		Nodes:           nodes,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

func (j *IndexingJob) Kind() JobKind { return JobKindIndexing }
func (j *IndexingJob) JobID() string { return j.ID }

func (j *IndexingJob) Label() string {
	return fmt.Sprintf("ElasticSearch Indexing Job (%d records)", len(j.Nodes))
}

// Validate checks required fields.
func (j *IndexingJob) Validate() error {
	if err := validate.Struct(j); err != nil {
		return E(KindInvalidJob, "validate indexing job", err)
	}
	return nil
}

// RemovalJob removes every referenced record from the index generation
// identified by IndexPostfix.
type RemovalJob struct {
	ID              string            `json:"id" validate:"required,uuid"`
	IndexPostfix    string            `json:"indexPostfix" validate:"omitempty,numeric"`
	TargetWorkspace string            `json:"targetWorkspace,omitempty"`
	Nodes           []RecordReference `json:"nodes" validate:"required,min=1,dive"`
}

// NewRemovalJob builds a validated removal job.
func NewRemovalJob(indexPostfix, targetWorkspace string, nodes []RecordReference) (*RemovalJob, error) {
	job := &RemovalJob{
		ID:              NewJobID(),
		IndexPostfix:    indexPostfix,
		TargetWorkspace: targetWorkspace,
		Nodes:           nodes,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

func (j *RemovalJob) Kind() JobKind { return JobKindRemoval }
func (j *RemovalJob) JobID() string { return j.ID }

func (j *RemovalJob) Label() string {
	return fmt.Sprintf("ElasticSearch Removal Job (%d records)", len(j.Nodes))
}

// Validate checks required fields.
func (j *RemovalJob) Validate() error {
	if err := validate.Struct(j); err != nil {
		return E(KindInvalidJob, "validate removal job", err)
	}
	return nil
}

// AliasSwitchJob points the alias of one dimension combination at the
// generation built under IndexPostfix. It is queued after every batch of
// a build.
type AliasSwitchJob struct {
	ID           string          `json:"id" validate:"required,uuid"`
	IndexPostfix string          `json:"indexPostfix" validate:"required,numeric"`
	Dimensions   DimensionValues `json:"dimensions"`
	// ExpectedBatches is the number of indexing jobs queued by the build.
	// Zero disables the completion barrier.
	ExpectedBatches int `json:"expectedBatches" validate:"gte=0"`
	// Deferrals counts how often the job was re-queued while waiting for
	// batches to settle.
	Deferrals int `json:"deferrals" validate:"gte=0"`
}

// NewAliasSwitchJob builds a validated alias switch job.
func NewAliasSwitchJob(indexPostfix string, dims DimensionValues, expectedBatches int) (*AliasSwitchJob, error) {
	job := &AliasSwitchJob{
		ID:              NewJobID(),
		IndexPostfix:    indexPostfix,
		Dimensions:      dims.Clone(),
		ExpectedBatches: expectedBatches,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

func (j *AliasSwitchJob) Kind() JobKind { return JobKindAliasSwitch }
func (j *AliasSwitchJob) JobID() string { return j.ID }

func (j *AliasSwitchJob) Label() string {
	return "ElasticSearch Indexing Job (alias switch to " + j.IndexPostfix + ")"
}

// Validate checks required fields.
func (j *AliasSwitchJob) Validate() error {
	if err := validate.Struct(j); err != nil {
		return E(KindInvalidJob, "validate alias switch job", err)
	}
	return nil
}

// Deferred returns a copy with a new id and the deferral count incremented.
func (j *AliasSwitchJob) Deferred() *AliasSwitchJob {
	next := *j
	next.ID = NewJobID()
	next.Dimensions = j.Dimensions.Clone()
	next.Deferrals++
	return &next
}

type envelope struct {
	Kind    JobKind         `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeJob serialises a job into a queue message payload.
func EncodeJob(job Job) ([]byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, E(KindInvalidJob, "encode job", err)
	}
	b, err := json.Marshal(envelope{Kind: job.Kind(), Payload: payload})
	if err != nil {
		return nil, E(KindInvalidJob, "encode job", err)
	}
	return b, nil
}

// DecodeJob restores and validates a job from a queue message payload.
func DecodeJob(data []byte) (Job, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, E(KindInvalidJob, "decode job", err)
	}

	var job interface {
		Job
		Validate() error
	}
	switch env.Kind {
	case JobKindIndexing:
		job = &IndexingJob{}
	case JobKindRemoval:
		job = &RemovalJob{}
	case JobKindAliasSwitch:
		job = &AliasSwitchJob{}
	default:
		return nil, Errorf(KindInvalidJob, "decode job", "unknown job kind %q", env.Kind)
	}

	if err := json.Unmarshal(env.Payload, job); err != nil {
		return nil, E(KindInvalidJob, "decode job", err)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}
