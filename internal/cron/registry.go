package cron

import (
	"context"
	"time"
)

// Job is one unit of scheduled work in the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry keeps jobs in registration order. A job registered with Every only
// becomes due once its cadence has elapsed since its last run on this
// instance; plain jobs run on every cycle.
type Registry struct {
	entries []*entry
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register adds a job that runs every cycle.
func (r *Registry) Register(job Job) {
	r.Every(0, job)
}

// Every adds a job that runs at most once per cadence.
func (r *Registry) Every(cadence time.Duration, job Job) {
	if job == nil {
		return
	}
	if cadence < 0 {
		cadence = 0
	}
	r.entries = append(r.entries, &entry{job: job, every: cadence})
}

// Jobs returns a copy of every registered job.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

// Due returns the jobs whose cadence has elapsed at now without marking them.
func (r *Registry) Due(now time.Time) []Job {
	var due []Job
	for _, e := range r.entries {
		if e.every == 0 || e.lastRun.IsZero() || !now.Before(e.lastRun.Add(e.every)) {
			due = append(due, e.job)
		}
	}
	return due
}

// MarkRan records that job started at now.
func (r *Registry) MarkRan(job Job, now time.Time) {
	for _, e := range r.entries {
		if e.job == job {
			e.lastRun = now
			return
		}
	}
}
