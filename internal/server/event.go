package server

import (
	"snapdiff/internal/diff"
	"snapdiff/internal/pipeline"
)

// ResultEvent is the wire form of a pipeline result on /stream and /ws.
type ResultEvent struct {
	JobID            string  `json:"job_id"`
	RunID            string  `json:"run_id,omitempty"`
	Identity         string  `json:"identity"`
	Verdict          string  `json:"verdict"`
	MaxColorDistance float64 `json:"max_color_distance"`
	DiffArea         int     `json:"diff_area"`
	Attempts         int     `json:"attempts"`
	Exhausted        bool    `json:"exhausted"`
	CurrentPath      string  `json:"current_path,omitempty"`
	DiffPath         string  `json:"diff_path,omitempty"`
	Message          string  `json:"message,omitempty"`
	Error            string  `json:"error,omitempty"`
}

func NewResultEvent(res pipeline.Result) ResultEvent {
	v := res.Verdict
	ev := ResultEvent{
		JobID:            res.Job.ID,
		RunID:            res.Job.RunID,
		Identity:         res.Job.Identity.Name(),
		Verdict:          v.Kind.String(),
		MaxColorDistance: diff.Round(v.MaxColorDistance),
		DiffArea:         v.DiffArea,
		Attempts:         v.Attempts,
		Exhausted:        v.Exhausted,
		CurrentPath:      v.CurrentPath,
		DiffPath:         v.DiffPath,
		Message:          v.Failure(""),
	}
	if res.Error != nil {
		ev.Verdict = "error"
		ev.Error = res.Error.Error()
	}
	return ev
}
