// Package capture periodically captures the screen and sends it over the
// shared realtime connection while a target project is set.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goblin/desktop/internal/bus"
	"github.com/goblin/desktop/internal/client"
	"github.com/goblin/desktop/internal/clock"
	"github.com/goblin/desktop/internal/metrics"
	"github.com/rs/zerolog"
)

// MinPeriod is the shortest allowed capture cadence.
const MinPeriod = time.Second

// Transport is the part of client.Manager the scheduler needs.
type Transport interface {
	Send(payload any) bool
	State() client.State
	Reconnect(ctx context.Context) error
}

// Job describes the current schedule. A timer is armed iff Active.
type Job struct {
	Target string
	Period time.Duration
	Active bool
}

type Options struct {
	Transport     Transport
	Provider      Provider
	DefaultPeriod time.Duration
	Clock         clock.Clock
	Metrics       *metrics.Metrics
	Log           zerolog.Logger
}

type Scheduler struct {
	transport Transport
	provider  Provider
	clock     clock.Clock
	bus       *bus.Bus
	metrics   *metrics.Metrics
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	job           Job
	defaultPeriod time.Duration
	timer         clock.Timer
	gen           uint64 // invalidates ticks of a replaced timer
	inFlight      bool

	unsub func()
}

// NewScheduler creates an inactive scheduler. It listens for connection.status
// so a fresh connection gets a capture right away.
func NewScheduler(opts Options, b *bus.Bus) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clock.Real
	}
	if opts.DefaultPeriod <= 0 {
		opts.DefaultPeriod = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		transport:     opts.Transport,
		provider:      opts.Provider,
		clock:         opts.Clock,
		bus:           b,
		metrics:       opts.Metrics,
		log:           opts.Log.With().Str("component", "capture").Logger(),
		ctx:           ctx,
		cancel:        cancel,
		defaultPeriod: opts.DefaultPeriod,
	}

	s.unsub = bus.On(b, func(e client.StatusEvent) {
		if e.State != client.StateConnected {
			return
		}
		s.mu.Lock()
		target, active := s.job.Target, s.job.Active
		s.mu.Unlock()
		if active {
			// Status events are published from inside the connection
			// manager; capture and a possible Reconnect must run outside.
			go s.capture(target)
		}
	})
	return s
}

// Job returns a snapshot of the schedule.
func (s *Scheduler) Job() Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

// Start activates capturing for target every period and captures once
// immediately. A period <= 0 uses the default.
func (s *Scheduler) Start(target string, period time.Duration) error {
	s.mu.Lock()
	if target == "" {
		s.mu.Unlock()
		s.log.Warn().Msg("capture start rejected: no target context")
		return ErrNoTargetContext
	}
	if period <= 0 {
		period = s.defaultPeriod
	}
	if period < MinPeriod {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is below %s", ErrInvalidPeriod, period, MinPeriod)
	}

	s.stopLocked()
	s.job = Job{Target: target, Period: period, Active: true}
	s.armLocked()
	s.mu.Unlock()

	s.log.Info().Str("target", target).Dur("period", period).Msg("capture started")
	s.capture(target)
	return nil
}

// Stop disarms the timer. A capture already running completes normally.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasActive := s.job.Active
	s.stopLocked()
	s.mu.Unlock()

	if wasActive {
		s.log.Info().Msg("capture stopped")
	}
}

// UpdateFrequency changes the cadence and makes period the default for later
// Starts. An active job is re-armed with the new period without an extra
// capture.
func (s *Scheduler) UpdateFrequency(period time.Duration) error {
	if period < MinPeriod {
		return fmt.Errorf("%w: %s is below %s", ErrInvalidPeriod, period, MinPeriod)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.defaultPeriod = period
	if !s.job.Active {
		return nil
	}
	if s.job.Period == period {
		return nil
	}
	s.disarmLocked()
	s.job.Period = period
	s.armLocked()
	s.log.Info().Dur("period", period).Msg("capture frequency updated")
	return nil
}

// SetTargetContext switches the project captures are attributed to. An
// active job restarts for the new target; an inactive scheduler stores it.
func (s *Scheduler) SetTargetContext(target string) error {
	s.mu.Lock()
	if !s.job.Active {
		s.job.Target = target
		s.mu.Unlock()
		return nil
	}
	period := s.job.Period
	s.stopLocked()
	s.job.Target = ""
	s.mu.Unlock()

	if target == "" {
		s.log.Warn().Msg("capture stopped: target context cleared")
		return ErrNoTargetContext
	}
	return s.Start(target, period)
}

// Close stops the schedule and detaches from the bus.
func (s *Scheduler) Close() {
	s.Stop()
	s.cancel()
	s.unsub()
}

func (s *Scheduler) stopLocked() {
	s.disarmLocked()
	s.job.Active = false
}

func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Scheduler) armLocked() {
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.job.Period, func() { s.tick(gen) })
}

func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.job.Active {
		s.mu.Unlock()
		return
	}
	s.armLocked()
	target := s.job.Target
	s.mu.Unlock()

	s.capture(target)
}

// capture performs one gated capture-and-send.
func (s *Scheduler) capture(target string) {
	s.mu.Lock()
	if !s.job.Active || target == "" {
		s.mu.Unlock()
		s.skip("inactive")
		return
	}
	if s.inFlight {
		s.mu.Unlock()
		s.metrics.CaptureTick("busy")
		s.log.Debug().Msg("capture skipped: previous capture still running")
		return
	}
	if state := s.transport.State(); state != client.StateConnected {
		s.mu.Unlock()
		s.skip(state.String())
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	img, err := s.provider.Capture(s.ctx)
	if err != nil {
		perr := &ProviderError{Err: err}
		s.metrics.CaptureTick("failed")
		s.log.Warn().Err(perr).Str("target", target).Msg("capture failed")
		s.bus.Publish(ErrorEvent{Target: target, Err: perr})
		return
	}

	now := s.clock.Now()
	frame := client.CaptureFrame{
		Type:      client.CaptureFrameType,
		Data:      img.DataURL(),
		Project:   target,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if !s.transport.Send(frame) {
		s.metrics.CaptureTick("failed")
		s.log.Warn().Str("target", target).Msg("capture send failed, requesting reconnect")
		s.bus.Publish(ErrorEvent{Target: target, Err: ErrSendFailed})
		if err := s.transport.Reconnect(s.ctx); err != nil {
			s.log.Debug().Err(err).Msg("reconnect after failed capture send")
		}
		return
	}

	s.metrics.CaptureSent(len(frame.Data))
	s.log.Debug().Str("target", target).Int("bytes", len(frame.Data)).Msg("capture sent")
	s.bus.Publish(SentEvent{Target: target, Bytes: len(frame.Data), At: now})
}

func (s *Scheduler) skip(reason string) {
	s.metrics.CaptureTick("skipped")
	s.log.Debug().Str("reason", reason).Msg("capture skipped")
}
