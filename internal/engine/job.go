// Package engine runs ingestion jobs and records each run in the run log.
package engine

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Result is what a job reports back to the engine.
type Result struct {
	Rows     int64
	Metadata map[string]any
}

// Job is one ingestion job.
type Job interface {
	Name() string
	Run(ctx context.Context) (*Result, error)
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) (*Result, error)
}

func (j *funcJob) Name() string                             { return j.name }
func (j *funcJob) Run(ctx context.Context) (*Result, error) { return j.fn(ctx) }

// NewJob adapts a function to Job.
func NewJob(name string, fn func(ctx context.Context) (*Result, error)) Job {
	return &funcJob{name: name, fn: fn}
}

// Metadata flattens a job-specific summary struct into run-log metadata
// using its JSON field names.
func Metadata(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// Registry maps job names to jobs.
type Registry struct {
	jobs  map[string]Job
	order []string // insertion order for deterministic iteration
}

// NewRegistry creates a registry holding jobs in the given order.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{jobs: make(map[string]Job)}
	for _, j := range jobs {
		r.Register(j)
	}
	return r
}

// Register adds a job. Registering a name twice replaces the job but keeps
// its original position.
func (r *Registry) Register(j Job) {
	name := j.Name()
	if _, ok := r.jobs[name]; !ok {
		r.order = append(r.order, name)
	}
	r.jobs[name] = j
}

// Get returns a job by name.
func (r *Registry) Get(name string) (Job, error) {
	j, ok := r.jobs[name]
	if !ok {
		return nil, eris.Errorf("engine: unknown job %q", name)
	}
	return j, nil
}

// Select returns the named jobs in the order given, or every job in
// registration order when names is empty.
func (r *Registry) Select(names []string) ([]Job, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	out := make([]Job, 0, len(names))
	for _, name := range names {
		j, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// All returns every job in registration order.
func (r *Registry) All() []Job {
	out := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.jobs[name])
	}
	return out
}

// Names lists job names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
