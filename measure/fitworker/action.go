package fitworker

import (
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/algo-gamma/measure/peak"
	"github.com/google/uuid"
)

// Kind names a worker action. It doubles as the worker state: the worker
// is in state Idle or in the state of the action it runs.
type Kind int32

const (
	Idle Kind = iota
	Fit
	Refit
	AddPeak
	AdjustROI
	RemovePeaks
	Stop
)

var kindNames = [...]string{"idle", "fit", "refit", "add_peak", "adjust_roi", "remove_peaks", "stop"}

// String returns the metric and log name of the kind.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int32(k))
}

// Action is one request to the worker. Which fields are used depends on
// Kind:
//
//	Fit          MinWidth (finder width when the snapshot has no ROIs yet)
//	Refit        ROI
//	AddPeak      Left, Right
//	AdjustROI    ROI, Left, Right
//	RemovePeaks  Centers
type Action struct {
	Kind     Kind
	ROI      int
	Left     int
	Right    int
	Centers  []float64
	MinWidth int
}

// Update is a state snapshot published by the worker.
type Update struct {
	JobID  uuid.UUID
	Action Action
	// State is a complete snapshot; consumers never need earlier updates
	// to interpret it.
	State peak.State
	// ContentChanged is set when the set of ROIs or peaks differs from the
	// submitted state.
	ContentChanged bool
	// Progress counts the ROIs fit so far out of Total during a Fit.
	Progress int
	Total    int
	Done     bool
	Canceled bool
	Err      error
}

// Job is the handle of a submitted action.
type Job struct {
	ID     uuid.UUID
	Action Action

	canceled atomic.Bool
	done     chan struct{}
	result   Update
}

func newJob(a Action) *Job {
	return &Job{ID: uuid.New(), Action: a, done: make(chan struct{})}
}

// Done is closed when the action has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Result blocks until the action has finished and returns its final update.
func (j *Job) Result() Update {
	<-j.done
	return j.result
}

func (j *Job) finish(u Update) {
	j.result = u
	close(j.done)
}

// contentChanged reports whether the ROI bounds or peak centers of b differ
// from those of a.
func contentChanged(a, b peak.State) bool {
	if len(a.ROIs) != len(b.ROIs) {
		return true
	}
	for i, ra := range a.ROIs {
		rb := b.ROIs[i]
		if ra.ID != rb.ID || ra.Left != rb.Left || ra.Right != rb.Right || len(ra.Peaks) != len(rb.Peaks) {
			return true
		}
		for j := range ra.Peaks {
			if ra.Peaks[j].Center != rb.Peaks[j].Center {
				return true
			}
		}
	}
	return false
}
