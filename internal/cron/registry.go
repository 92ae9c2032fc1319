package cron

import "context"

// Job is a scheduled sweep that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry tracks the jobs a worker ticks through. Job names are unique;
// registering a second job under an existing name is ignored so a sweep
// cannot run twice per tick.
type Registry struct {
	jobs  []Job
	names map[string]bool
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{names: map[string]bool{}}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job under its name. Nil jobs and duplicate names are
// dropped.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	if r.names == nil {
		r.names = map[string]bool{}
	}
	if r.names[job.Name()] {
		return
	}
	r.names[job.Name()] = true
	r.jobs = append(r.jobs, job)
}

// Jobs returns the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
