// Package device owns the serial link to the receiver and the cached state
// of everything sent to or heard from it.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dougsko/rx320d/pkg/hardware"
	"github.com/dougsko/rx320d/pkg/logging"
	"github.com/dougsko/rx320d/pkg/rx320"
	"github.com/dougsko/rx320d/pkg/verbose"
)

const component = "SESSION"

var (
	// ErrNotReady is returned when tuning before mode and filter are set
	ErrNotReady = errors.New("mode and filter must be set before tuning")

	// ErrSessionClosed is returned after Stop or after the link failed
	ErrSessionClosed = errors.New("device session closed")
)

// DefaultPollInterval is the delay between strength queries
const DefaultPollInterval = 200 * time.Millisecond

// Options configures a Session
type Options struct {
	PollInterval time.Duration
	Logger       *logging.Logger
}

// Session serializes all access to one receiver
type Session struct {
	link    hardware.Link
	options Options
	logger  *logging.Logger

	// mutex guards state and every write to link
	mutex sync.Mutex
	state State

	// statusMutex guards values written by the read loop
	statusMutex sync.RWMutex
	strength    int
	firmware    string

	observerMutex sync.RWMutex
	observers     []Observer

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once

	errMutex sync.Mutex
	err      error
}

// NewSession creates a session that takes ownership of link
func NewSession(link hardware.Link, options Options) *Session {
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		link:    link,
		options: options,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start launches the read and poll loops. They run until ctx is cancelled,
// Stop is called or the link fails.
func (s *Session) Start(ctx context.Context) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}

	started := false
	s.startOnce.Do(func() {
		started = true

		go func() {
			select {
			case <-ctx.Done():
				s.cancel()
			case <-s.ctx.Done():
			}
		}()

		s.wg.Add(2)
		go s.readLoop()
		go s.pollLoop()

		go func() {
			s.wg.Wait()
			s.closeLink()
			close(s.done)
		}()

		s.logger.Info(component, "Device session started", map[string]interface{}{
			"poll_interval": s.options.PollInterval.String(),
		})
	})

	if !started {
		return fmt.Errorf("session already started")
	}
	return nil
}

// Stop cancels the background loops, closes the link and waits for both
// loops to exit. It returns the error that ended the session, if any.
func (s *Session) Stop() error {
	s.cancel()
	s.closeLink()
	s.startOnce.Do(func() { close(s.done) })
	<-s.done
	return s.Err()
}

// Done is closed once the session has fully stopped
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the link error that ended the session, or nil
func (s *Session) Err() error {
	s.errMutex.Lock()
	defer s.errMutex.Unlock()
	return s.err
}

func (s *Session) closeLink() {
	s.closeOnce.Do(func() {
		if err := s.link.Close(); err != nil {
			s.logger.Warnf(component, "Failed to close link: %v", err)
		}
	})
}

// fail records a link error and tears the session down
func (s *Session) fail(err error) {
	s.errMutex.Lock()
	if s.err == nil {
		s.err = err
		s.logger.Error(component, "Serial link failed, stopping session", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.errMutex.Unlock()
	s.cancel()
}

// write sends one frame. The caller must hold s.mutex.
func (s *Session) write(frame []byte) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}

	verbose.Frame("tx", frame)
	if _, err := s.link.Write(frame); err != nil {
		if s.ctx.Err() != nil {
			return ErrSessionClosed
		}
		err = fmt.Errorf("serial write failed: %w", err)
		s.fail(err)
		return err
	}
	return nil
}

// SetFrequency tunes the receiver. Mode and filter must already be set;
// cwbfo only applies in CW mode.
func (s *Session) SetFrequency(freq, cwbfo int) (Result, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.state.Mode.Set || !s.state.Filter.Set {
		return Ignored, ErrNotReady
	}

	mode := rx320.Mode(s.state.Mode.Value)
	if mode != rx320.ModeCW {
		cwbfo = 0
	}

	tuning, err := rx320.ComputeTuning(freq, mode, s.state.Filter.Value, cwbfo)
	if err != nil {
		return Ignored, err
	}

	if err := s.write(rx320.TuneFrame(tuning)); err != nil {
		return Ignored, err
	}

	s.state.Frequency = Some(freq)
	s.state.CWBFO = cwbfo
	s.state.Tuning = &tuning
	s.logger.Debug(component, "Tuned", map[string]interface{}{
		"frequency": freq,
		"coarse":    tuning.Coarse,
		"fine":      tuning.Fine,
		"bfo":       tuning.BFO,
	})
	return Applied, nil
}

// SetMode selects a demodulation mode. Codes outside 0..4 are ignored.
func (s *Session) SetMode(mode int) (Result, error) {
	if mode < 0 || mode > rx320.MaxModeCode {
		return Ignored, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.write(rx320.ModeFrame(rx320.Mode(mode))); err != nil {
		return Ignored, err
	}
	s.state.Mode = Some(mode)
	if rx320.Mode(mode) != rx320.ModeCW {
		s.state.CWBFO = 0
	}
	return Applied, nil
}

// SetFilter selects an IF filter by index. Indexes outside the table are ignored.
func (s *Session) SetFilter(index int) (Result, error) {
	if index < 0 || index > rx320.MaxFilterIndex {
		return Ignored, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.write(rx320.FilterFrame(index)); err != nil {
		return Ignored, err
	}
	s.state.Filter = Some(index)
	return Applied, nil
}

// SetAGC selects an AGC level. Codes outside 0..3 are ignored.
func (s *Session) SetAGC(level int) (Result, error) {
	if level < 0 || level > rx320.MaxAGCCode {
		return Ignored, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.write(rx320.AGCFrame(level)); err != nil {
		return Ignored, err
	}
	s.state.AGC = Some(level)
	return Applied, nil
}

// SetLineVolume sets the line output level, clamped to 0..63
func (s *Session) SetLineVolume(volume int) (Result, error) {
	volume = rx320.ClampVolume(volume)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.write(rx320.LineVolumeFrame(volume)); err != nil {
		return Ignored, err
	}
	s.state.LineVolume = Some(volume)
	return Applied, nil
}

// SetSpeakerVolume sets the speaker level, clamped to 0..63
func (s *Session) SetSpeakerVolume(volume int) (Result, error) {
	volume = rx320.ClampVolume(volume)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.write(rx320.SpeakerVolumeFrame(volume)); err != nil {
		return Ignored, err
	}
	s.state.SpeakerVolume = Some(volume)
	return Applied, nil
}

// SetVolume sets line and speaker levels together, clamped to 0..63
func (s *Session) SetVolume(volume int) (Result, error) {
	volume = rx320.ClampVolume(volume)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.write(rx320.VolumeFrame(volume)); err != nil {
		return Ignored, err
	}
	s.state.LineVolume = Some(volume)
	s.state.SpeakerVolume = Some(volume)
	return Applied, nil
}

// QueryFirmware forgets the cached firmware version and asks the receiver
// for it. The answer arrives through the read loop.
func (s *Session) QueryFirmware() (Result, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.statusMutex.Lock()
	s.firmware = ""
	s.statusMutex.Unlock()

	if err := s.write(rx320.FirmwareQueryFrame()); err != nil {
		return Ignored, err
	}
	return Applied, nil
}

// Get returns one cached value. Signal strength is always set.
func (s *Session) Get(field Field) Optional {
	if field == FieldStrength {
		return Some(s.Strength())
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	switch field {
	case FieldMode:
		return s.state.Mode
	case FieldFilter:
		return s.state.Filter
	case FieldAGC:
		return s.state.AGC
	case FieldFrequency:
		return s.state.Frequency
	case FieldLineVolume:
		return s.state.LineVolume
	case FieldSpeakerVolume:
		return s.state.SpeakerVolume
	}
	return Optional{}
}

// Snapshot returns a consistent copy of the whole cached state
func (s *Session) Snapshot() State {
	s.mutex.Lock()
	state := s.state
	if state.Tuning != nil {
		tuning := *state.Tuning
		state.Tuning = &tuning
	}
	s.mutex.Unlock()

	s.statusMutex.RLock()
	state.Strength = s.strength
	state.Firmware = s.firmware
	s.statusMutex.RUnlock()
	return state
}

// Strength returns the last reported signal strength
func (s *Session) Strength() int {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.strength
}

// Firmware returns the last reported firmware version, or ""
func (s *Session) Firmware() string {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.firmware
}

// AddObserver registers fn for strength and firmware replies
func (s *Session) AddObserver(fn Observer) {
	s.observerMutex.Lock()
	defer s.observerMutex.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Session) notify(event Event) {
	s.observerMutex.RLock()
	defer s.observerMutex.RUnlock()
	for _, fn := range s.observers {
		fn(event)
	}
}
