package deploy

import "fmt"

type State int

const (
	NotStarted State = iota
	StepCompleted
	AllStepsCompleted
)

// Progress counts completed steps of a manifest, skipped ones included.
type Progress struct {
	Completed int
	Total     int
}

func (p Progress) State() State {
	switch {
	case p.Completed == 0:
		return NotStarted
	case p.Completed >= p.Total:
		return AllStepsCompleted
	default:
		return StepCompleted
	}
}

func (p Progress) String() string {
	switch p.State() {
	case NotStarted:
		return "not started"
	case AllStepsCompleted:
		return "all steps completed"
	default:
		return fmt.Sprintf("step %d of %d completed", p.Completed, p.Total)
	}
}
