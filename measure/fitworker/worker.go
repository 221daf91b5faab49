package fitworker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-gamma/measure/peak"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const defaultUpdateBuffer = 16

// Errors returned by [Worker.Submit].
var (
	ErrBusy          = errors.New("fitworker: busy")
	ErrClosed        = errors.New("fitworker: closed")
	ErrInvalidAction = errors.New("fitworker: invalid action")
)

// Option configures a [Worker].
type Option func(*config)

type config struct {
	logger       *zap.Logger
	registerer   prometheus.Registerer
	updateBuffer int
}

// WithLogger sets the worker logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithRegisterer registers the worker metrics on reg. Default is a private
// registry. Two workers cannot share one registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *config) {
		if reg != nil {
			cfg.registerer = reg
		}
	}
}

// WithUpdateBuffer sets the capacity of the updates channel. Values below
// one are ignored.
func WithUpdateBuffer(n int) Option {
	return func(cfg *config) {
		if n >= 1 {
			cfg.updateBuffer = n
		}
	}
}

type task struct {
	job   *Job
	state peak.State
}

// Worker runs fit actions one at a time.
type Worker struct {
	state  atomic.Int32
	closed atomic.Bool

	// mu guards the handoff: the pending task, the active job, a stop that
	// arrives before the active job is set, and the return to Idle.
	mu        sync.Mutex
	pending   *task
	active    *Job
	stopEarly bool

	wake      chan struct{}
	quit      chan struct{}
	updates   chan Update
	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup

	log     *zap.Logger
	metrics *metrics
}

// New returns a worker. Call [Worker.Start] to run it.
func New(opts ...Option) *Worker {
	cfg := config{logger: zap.NewNop(), updateBuffer: defaultUpdateBuffer}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.registerer == nil {
		cfg.registerer = prometheus.NewRegistry()
	}
	return &Worker{
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		updates: make(chan Update, cfg.updateBuffer),
		log:     cfg.logger,
		metrics: newMetrics(cfg.registerer),
	}
}

// Start launches the worker loop. The loop ends when ctx is done or
// [Worker.Close] is called. Calling Start more than once has no effect.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.run(ctx)
	})
}

// Close ends the worker loop and waits for it to return. A running action
// stops at the next ROI boundary. Pending jobs finish as canceled.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		close(w.quit)
	})
	w.wg.Wait()
	w.drain()
}

// Updates returns the snapshot stream. When the consumer lags, the oldest
// snapshots are dropped.
func (w *Worker) Updates() <-chan Update { return w.updates }

// Current returns the kind of the running action, or Idle.
func (w *Worker) Current() Kind { return Kind(w.state.Load()) }

// Busy reports whether an action is running or pending.
func (w *Worker) Busy() bool { return w.Current() != Idle }

// Submit hands a to the worker together with a clone of state. It fails
// with [ErrBusy] while another action runs; there is no queue. A Stop
// action is the same as calling [Worker.Stop] and returns a nil job.
func (w *Worker) Submit(state peak.State, a Action) (*Job, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	switch a.Kind {
	case Stop:
		w.Stop()
		return nil, nil
	case Fit, Refit, AddPeak, AdjustROI, RemovePeaks:
	default:
		return nil, ErrInvalidAction
	}

	if !w.state.CompareAndSwap(int32(Idle), int32(a.Kind)) {
		w.metrics.rejected.WithLabelValues(a.Kind.String()).Inc()
		w.log.Warn("action rejected, worker busy",
			zap.Stringer("action", a.Kind),
			zap.Stringer("running", w.Current()))
		return nil, ErrBusy
	}
	w.metrics.accepted.WithLabelValues(a.Kind.String()).Inc()

	a.Centers = append([]float64(nil), a.Centers...)
	job := newJob(a)
	w.mu.Lock()
	w.pending = &task{job: job, state: state.Clone()}
	w.active = job
	if w.stopEarly {
		job.canceled.Store(true)
		w.stopEarly = false
	}
	w.mu.Unlock()
	if w.closed.Load() {
		w.drain()
		return job, nil
	}

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return job, nil
}

// Stop asks the running action to cancel. It is a no-op while idle.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	kind := w.Current()
	switch {
	case kind == Idle:
		return
	case w.active != nil:
		w.active.canceled.Store(true)
	default:
		// Submit has claimed the worker but not yet published its job.
		w.stopEarly = true
	}
	w.log.Debug("stop requested", zap.Stringer("action", kind))
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.closed.Store(true)
			w.drain()
			return
		case <-w.quit:
			w.drain()
			return
		case <-w.wake:
		}

		w.mu.Lock()
		t := w.pending
		w.pending = nil
		w.mu.Unlock()
		if t != nil {
			w.execute(ctx, t)
		}
	}
}

// drain finishes a job that was handed off but never started.
func (w *Worker) drain() {
	w.mu.Lock()
	t := w.pending
	w.pending = nil
	w.mu.Unlock()
	if t == nil {
		return
	}
	w.complete(t.job, Update{
		JobID:    t.job.ID,
		Action:   t.job.Action,
		State:    t.state,
		Done:     true,
		Canceled: true,
		Err:      ErrClosed,
	})
}

func (w *Worker) stopping(ctx context.Context, job *Job) bool {
	return job.canceled.Load() || w.closed.Load() || ctx.Err() != nil
}

func (w *Worker) execute(ctx context.Context, t *task) {
	start := time.Now()
	job := t.job
	a := job.Action
	log := w.log.With(zap.String("job_id", job.ID.String()), zap.Stringer("action", a.Kind))
	w.metrics.inFlight.Set(1)
	defer w.metrics.inFlight.Set(0)

	before := t.state
	work := before.Clone()
	if a.Kind == Fit && a.MinWidth > 0 {
		work.Settings.MinWidth = a.MinWidth
	}
	eng := peak.NewEngine(work, peak.WithLogger(log))

	final := Update{JobID: job.ID, Action: a, Done: true}
	switch a.Kind {
	case Fit:
		final.Progress, final.Total, final.Canceled, final.Err = w.fitAll(ctx, job, eng, before)
	case Refit:
		final.Err = eng.Refit(a.ROI)
	case AddPeak:
		_, final.Err = eng.AddPeak(a.Left, a.Right)
	case AdjustROI:
		final.Err = eng.AdjustROI(a.ROI, a.Left, a.Right)
	case RemovePeaks:
		eng.RemovePeaks(a.Centers)
	}
	final.State = eng.State()
	final.ContentChanged = contentChanged(before, final.State)

	outcome := "done"
	switch {
	case final.Canceled:
		outcome = "canceled"
	case final.Err != nil && !peak.IsDropped(final.Err):
		outcome = "failed"
	}
	w.metrics.completed.WithLabelValues(a.Kind.String(), outcome).Inc()
	log.Info("action finished",
		zap.String("outcome", outcome),
		zap.Int("rois", len(final.State.ROIs)),
		zap.Int("peaks", final.State.PeakCount()),
		zap.Duration("duration", time.Since(start)),
		zap.Error(final.Err))

	w.publish(final)
	w.complete(job, final)
}

// fitAll fits the snapshot's ROIs one by one, publishing a snapshot after
// each ROI and checking for cancellation in between. A snapshot without
// ROIs has its regions found first.
func (w *Worker) fitAll(ctx context.Context, job *Job, eng *peak.Engine, before peak.State) (done, total int, canceled bool, err error) {
	ids := eng.ROIIDs()
	if len(ids) == 0 {
		if ids, err = eng.FindRegions(); err != nil {
			return 0, 0, false, err
		}
	}
	total = len(ids)
	for _, id := range ids {
		if w.stopping(ctx, job) {
			return done, total, true, nil
		}
		start := time.Now()
		if err := eng.FitROI(id); err != nil && !peak.IsDropped(err) {
			return done, total, false, err
		}
		w.metrics.roiDuration.Observe(time.Since(start).Seconds())
		done++

		st := eng.State()
		w.publish(Update{
			JobID:          job.ID,
			Action:         job.Action,
			State:          st,
			ContentChanged: contentChanged(before, st),
			Progress:       done,
			Total:          total,
		})
	}
	return done, total, false, nil
}

// publish sends u, dropping the oldest buffered snapshot while the channel
// is full.
func (w *Worker) publish(u Update) {
	for {
		select {
		case w.updates <- u:
			return
		default:
		}
		select {
		case <-w.updates:
			w.metrics.dropped.Inc()
		default:
		}
	}
}

// complete returns the worker to Idle and then releases the job, so a
// caller woken by the job can submit again right away.
func (w *Worker) complete(job *Job, u Update) {
	w.mu.Lock()
	if w.active == job {
		w.active = nil
	}
	w.stopEarly = false
	w.state.Store(int32(Idle))
	w.mu.Unlock()
	job.finish(u)
}
