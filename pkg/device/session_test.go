package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dougsko/rx320d/pkg/hardware"
	"github.com/dougsko/rx320d/pkg/rx320"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, config hardware.MockLinkConfig, poll time.Duration) (*Session, *hardware.MockLink) {
	t.Helper()
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 5 * time.Millisecond
	}
	link := hardware.NewMockLink(config)
	session := NewSession(link, Options{PollInterval: poll})
	t.Cleanup(func() { session.Stop() })
	return session, link
}

func tuneReady(t *testing.T, s *Session, mode, filter int) {
	t.Helper()
	_, err := s.SetMode(mode)
	require.NoError(t, err)
	_, err = s.SetFilter(filter)
	require.NoError(t, err)
}

func TestSetFrequency(t *testing.T) {
	t.Run("RequiresModeAndFilter", func(t *testing.T) {
		s, link := newTestSession(t, hardware.MockLinkConfig{}, time.Hour)

		_, err := s.SetFrequency(3630000, 0)
		assert.ErrorIs(t, err, ErrNotReady)

		_, err = s.SetMode(int(rx320.ModeLSB))
		require.NoError(t, err)
		_, err = s.SetFrequency(3630000, 0)
		assert.ErrorIs(t, err, ErrNotReady)

		assert.Equal(t, 1, link.WrittenCount())
		assert.False(t, s.Get(FieldFrequency).Set)
	})

	t.Run("LSB", func(t *testing.T) {
		s, link := newTestSession(t, hardware.MockLinkConfig{}, time.Hour)
		tuneReady(t, s, int(rx320.ModeLSB), 16)
		link.Reset()

		result, err := s.SetFrequency(3630000, 0)
		require.NoError(t, err)
		assert.Equal(t, Applied, result)
		assert.Equal(t, [][]byte{{0x4E, 0x4B, 0xFB, 0x00, 0x00, 0x62, 0xA4, 0x0D}}, link.Written())
		assert.Equal(t, Some(3630000), s.Get(FieldFrequency))

		state := s.Snapshot()
		require.NotNil(t, state.Tuning)
		assert.Equal(t, rx320.Tuning{Coarse: 19451, Fine: 0, BFO: 25252}, *state.Tuning)
	})

	t.Run("CWKeepsOffset", func(t *testing.T) {
		s, _ := newTestSession(t, hardware.MockLinkConfig{}, time.Hour)
		tuneReady(t, s, int(rx320.ModeCW), 16)

		_, err := s.SetFrequency(7000000, 700)
		require.NoError(t, err)

		state := s.Snapshot()
		assert.Equal(t, 700, state.CWBFO)
		assert.Equal(t, rx320.Tuning{Coarse: 20798, Fine: 9828, BFO: 27163}, *state.Tuning)

		_, err = s.SetMode(int(rx320.ModeUSB))
		require.NoError(t, err)
		assert.Equal(t, 0, s.Snapshot().CWBFO)
	})

	t.Run("OffsetForcedToZeroOutsideCW", func(t *testing.T) {
		s, _ := newTestSession(t, hardware.MockLinkConfig{}, time.Hour)
		tuneReady(t, s, int(rx320.ModeUSB), 16)

		_, err := s.SetFrequency(7000000, 700)
		require.NoError(t, err)

		state := s.Snapshot()
		assert.Equal(t, 0, state.CWBFO)
		assert.Equal(t, rx320.Tuning{Coarse: 20800, Fine: 0, BFO: 25252}, *state.Tuning)
	})

	t.Run("OutOfRangeWritesNothing", func(t *testing.T) {
		s, link := newTestSession(t, hardware.MockLinkConfig{}, time.Hour)
		tuneReady(t, s, int(rx320.ModeAM), 0)
		_, err := s.SetFrequency(1000000, 0)
		require.NoError(t, err)
		link.Reset()

		result, err := s.SetFrequency(200000000, 0)
		assert.ErrorIs(t, err, rx320.ErrTuningRange)
		assert.Equal(t, Ignored, result)
		assert.Equal(t, 0, link.WrittenCount())
		assert.Equal(t, Some(1000000), s.Get(FieldFrequency))
	})

	t.Run("UnnamedModeCannotTune", func(t *testing.T) {
		s, link := newTestSession(t, hardware.MockLinkConfig{}, time.Hour)
		tuneReady(t, s, 4, 16)
		link.Reset()

		_, err := s.SetFrequency(3630000, 0)
		assert.ErrorIs(t, err, rx320.ErrUnsupportedMode)
		assert.Equal(t, 0, link.WrittenCount())
	})

	t.Run("Deterministic", func(t *testing.T) {
		s, link := newTestSession(t, hardware.MockLinkConfig{}, time.Hour)
		tuneReady(t, s, int(rx320.ModeUSB), 33)
		link.Reset()

		_, err := s.SetFrequency(14074321, 0)
		require.NoError(t, err)
		_, err = s.SetFrequency(14074321, 0)
		require.NoError(t, err)

		frames := link.Written()
		require.Len(t, frames, 2)
		assert.Equal(t, frames[0], frames[1])
	})
}

func TestSetters(t *testing.T) {
	s, link := newTestSession(t, hardware.MockLinkConfig{}, time.Hour)

	tests := []struct {
		name   string
		call   func() (Result, error)
		result Result
		frames [][]byte
		field  Field
		want   Optional
	}{
		{"ModeLSB", func() (Result, error) { return s.SetMode(2) }, Applied, [][]byte{{0x4D, '2', 0x0D}}, FieldMode, Some(2)},
		{"ModeOutOfRange", func() (Result, error) { return s.SetMode(9) }, Ignored, nil, FieldMode, Some(2)},
		{"ModeNegative", func() (Result, error) { return s.SetMode(-1) }, Ignored, nil, FieldMode, Some(2)},
		{"ModeUnnamed", func() (Result, error) { return s.SetMode(4) }, Applied, [][]byte{{0x4D, '4', 0x0D}}, FieldMode, Some(4)},
		{"Filter", func() (Result, error) { return s.SetFilter(33) }, Applied, [][]byte{{0x57, 33, 0x0D}}, FieldFilter, Some(33)},
		{"FilterOutOfRange", func() (Result, error) { return s.SetFilter(34) }, Ignored, nil, FieldFilter, Some(33)},
		{"AGCDefault", func() (Result, error) { return s.SetAGC(0) }, Applied, [][]byte{{0x47, '0', 0x0D}}, FieldAGC, Some(0)},
		{"AGCFast", func() (Result, error) { return s.SetAGC(3) }, Applied, [][]byte{{0x47, '3', 0x0D}}, FieldAGC, Some(3)},
		{"AGCOutOfRange", func() (Result, error) { return s.SetAGC(4) }, Ignored, nil, FieldAGC, Some(3)},
		{"LineVolumeLow", func() (Result, error) { return s.SetLineVolume(-5) }, Applied, [][]byte{{0x41, 0x00, 0, 0x0D}}, FieldLineVolume, Some(0)},
		{"LineVolumeHigh", func() (Result, error) { return s.SetLineVolume(200) }, Applied, [][]byte{{0x41, 0x00, 63, 0x0D}}, FieldLineVolume, Some(63)},
		{"SpeakerVolume", func() (Result, error) { return s.SetSpeakerVolume(40) }, Applied, [][]byte{{0x56, 0x00, 40, 0x0D}}, FieldSpeakerVolume, Some(40)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link.Reset()
			result, err := tt.call()
			require.NoError(t, err)
			assert.Equal(t, tt.result, result)
			assert.Equal(t, len(tt.frames), link.WrittenCount())
			if tt.frames != nil {
				assert.Equal(t, tt.frames, link.Written())
			}
			assert.Equal(t, tt.want, s.Get(tt.field))
		})
	}

	t.Run("CombinedVolume", func(t *testing.T) {
		link.Reset()
		_, err := s.SetVolume(99)
		require.NoError(t, err)
		assert.Equal(t, [][]byte{{0x43, 0x00, 63, 0x0D}}, link.Written())
		assert.Equal(t, Some(63), s.Get(FieldLineVolume))
		assert.Equal(t, Some(63), s.Get(FieldSpeakerVolume))
	})
}

func TestUnsetFields(t *testing.T) {
	s, _ := newTestSession(t, hardware.MockLinkConfig{}, time.Hour)

	for _, field := range []Field{FieldMode, FieldFilter, FieldAGC, FieldFrequency, FieldLineVolume, FieldSpeakerVolume} {
		assert.Equal(t, "NA", s.Get(field).String())
	}
	assert.Equal(t, "0", s.Get(FieldStrength).String())
	assert.Equal(t, "", s.Firmware())
}

func TestOptionalJSON(t *testing.T) {
	data, err := Optional{}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	data, err = Some(42).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "42", string(data))
}

func TestReadLoop(t *testing.T) {
	t.Run("StrengthFrames", func(t *testing.T) {
		s, link := newTestSession(t, hardware.MockLinkConfig{}, time.Hour)
		require.NoError(t, s.Start(context.Background()))

		link.Inject([]byte{0x58, 0x01, 0x2C, 0x0A, 0x0D})
		assert.Eventually(t, func() bool { return s.Strength() == 300 }, time.Second, 5*time.Millisecond)

		link.Inject([]byte{0x58, 0x01, 0x0D, 0x0D, 0x5A, 0x0D, 'D', 'S', 'P', '!', 0x0D, 0x58, 0x00, 0x07, 0x0D})
		assert.Eventually(t, func() bool { return s.Strength() == 7 }, time.Second, 5*time.Millisecond)
	})

	t.Run("SimulatedReceiver", func(t *testing.T) {
		s, _ := newTestSession(t, hardware.MockLinkConfig{Simulate: true, Strength: 512, Firmware: "1.07"}, 10*time.Millisecond)

		var mutex sync.Mutex
		var events []Event
		s.AddObserver(func(e Event) {
			mutex.Lock()
			events = append(events, e)
			mutex.Unlock()
		})

		require.NoError(t, s.Start(context.Background()))
		assert.Eventually(t, func() bool { return s.Strength() == 512 }, time.Second, 5*time.Millisecond)

		_, err := s.QueryFirmware()
		require.NoError(t, err)
		assert.Eventually(t, func() bool { return s.Firmware() == "1.07" }, time.Second, 5*time.Millisecond)

		mutex.Lock()
		defer mutex.Unlock()
		var sawStrength, sawFirmware bool
		for _, e := range events {
			switch e.Kind {
			case rx320.ResponseStrength:
				sawStrength = e.Strength == 512
			case rx320.ResponseFirmware:
				sawFirmware = e.Firmware == "1.07"
			}
		}
		assert.True(t, sawStrength)
		assert.True(t, sawFirmware)
	})
}

func TestPollLoop(t *testing.T) {
	s, link := newTestSession(t, hardware.MockLinkConfig{}, 10*time.Millisecond)
	require.NoError(t, s.Start(context.Background()))

	require.True(t, link.WaitForWrites(3, time.Second))
	for _, frame := range link.Written()[:3] {
		assert.Equal(t, []byte{0x58, 0x0D}, frame)
	}
}

func TestLinkFailure(t *testing.T) {
	boom := errors.New("boom")

	t.Run("Write", func(t *testing.T) {
		s, link := newTestSession(t, hardware.MockLinkConfig{}, 10*time.Millisecond)
		link.FailWrites(boom)
		require.NoError(t, s.Start(context.Background()))

		select {
		case <-s.Done():
		case <-time.After(time.Second):
			t.Fatal("session did not stop after write failure")
		}
		assert.ErrorIs(t, s.Err(), boom)

		_, err := s.SetMode(1)
		assert.ErrorIs(t, err, ErrSessionClosed)
	})

	t.Run("Read", func(t *testing.T) {
		s, link := newTestSession(t, hardware.MockLinkConfig{}, time.Hour)
		link.FailReads(boom)
		require.NoError(t, s.Start(context.Background()))

		select {
		case <-s.Done():
		case <-time.After(time.Second):
			t.Fatal("session did not stop after read failure")
		}
		assert.ErrorIs(t, s.Err(), boom)
		assert.ErrorIs(t, s.Stop(), boom)
	})
}

func TestStop(t *testing.T) {
	t.Run("Explicit", func(t *testing.T) {
		s, _ := newTestSession(t, hardware.MockLinkConfig{}, 10*time.Millisecond)
		require.NoError(t, s.Start(context.Background()))

		assert.NoError(t, s.Stop())
		assert.NoError(t, s.Stop())

		_, err := s.SetFilter(3)
		assert.ErrorIs(t, err, ErrSessionClosed)
		assert.ErrorIs(t, s.Start(context.Background()), ErrSessionClosed)
	})

	t.Run("ContextCancel", func(t *testing.T) {
		s, _ := newTestSession(t, hardware.MockLinkConfig{}, 10*time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, s.Start(ctx))

		cancel()
		select {
		case <-s.Done():
		case <-time.After(time.Second):
			t.Fatal("session did not stop after cancel")
		}
		assert.NoError(t, s.Err())
	})

	t.Run("StartTwice", func(t *testing.T) {
		s, _ := newTestSession(t, hardware.MockLinkConfig{}, time.Hour)
		require.NoError(t, s.Start(context.Background()))
		assert.Error(t, s.Start(context.Background()))
	})

	t.Run("StopWithoutStart", func(t *testing.T) {
		s, _ := newTestSession(t, hardware.MockLinkConfig{}, time.Hour)
		assert.NoError(t, s.Stop())
	})
}

func TestConcurrentTuningIsAtomic(t *testing.T) {
	s, _ := newTestSession(t, hardware.MockLinkConfig{}, time.Millisecond)
	tuneReady(t, s, int(rx320.ModeLSB), 16)
	require.NoError(t, s.Start(context.Background()))

	frequencies := []int{3630000, 7000000}
	expected := make(map[int]rx320.Tuning)
	for _, f := range frequencies {
		tuning, err := rx320.ComputeTuning(f, rx320.ModeLSB, 16, 0)
		require.NoError(t, err)
		expected[f] = tuning
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.SetFrequency(frequencies[i%2], 0)
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				state := s.Snapshot()
				if !state.Frequency.Set {
					continue
				}
				want, ok := expected[state.Frequency.Value]
				if assert.True(t, ok) && assert.NotNil(t, state.Tuning) {
					assert.Equal(t, want, *state.Tuning)
				}
			}
		}()
	}

	wg.Wait()
}
