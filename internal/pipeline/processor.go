package pipeline

import (
	"context"

	"snapdiff/internal/session"
)

// sessionProcessor runs each job through a shared comparison session.
type sessionProcessor struct {
	session *session.Session
}

// NewSessionProcessor returns the Processor used outside tests.
func NewSessionProcessor(s *session.Session) Processor {
	return &sessionProcessor{session: s}
}

func (sp *sessionProcessor) Process(ctx context.Context, job Job) Result {
	v, err := sp.session.Run(ctx, job.Identity, job.Source, job.Thresholds)
	return Result{Job: job, Verdict: v, Error: err}
}
