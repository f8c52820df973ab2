package hardware

import (
	"log"
	"sync"
	"time"
)

// MockLinkConfig configures a MockLink
type MockLinkConfig struct {
	ReadTimeout time.Duration
	Simulate    bool   // Answer queries like a receiver would
	Strength    int    // Signal strength reported when simulating
	Firmware    string // Firmware version reported when simulating
}

// MockLink implements Link in memory for testing and for running without a receiver
type MockLink struct {
	config MockLinkConfig
	mutex  sync.Mutex

	incoming  chan byte
	written   [][]byte
	writeCond *sync.Cond
	closed    chan struct{}
	closeOnce sync.Once

	readErr  error
	writeErr error
}

// NewMockLink creates a new mock link
func NewMockLink(config MockLinkConfig) *MockLink {
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 20 * time.Millisecond
	}
	if config.Firmware == "" {
		config.Firmware = "1.05"
	}

	l := &MockLink{
		config:   config,
		incoming: make(chan byte, 4096),
		closed:   make(chan struct{}),
	}
	l.writeCond = sync.NewCond(&l.mutex)

	if config.Simulate {
		log.Printf("MockLink: simulating receiver (firmware %s)", config.Firmware)
		l.Inject([]byte("DSP START\r\n"))
	}
	return l
}

// Read returns injected bytes, or 0, nil once the read timeout passes
func (l *MockLink) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	l.mutex.Lock()
	err := l.readErr
	l.mutex.Unlock()
	if err != nil {
		return 0, err
	}

	timer := time.NewTimer(l.config.ReadTimeout)
	defer timer.Stop()

	select {
	case <-l.closed:
		return 0, ErrLinkClosed
	case b := <-l.incoming:
		p[0] = b
		n := 1
		for n < len(p) {
			select {
			case b := <-l.incoming:
				p[n] = b
				n++
			default:
				return n, nil
			}
		}
		return n, nil
	case <-timer.C:
		return 0, nil
	}
}

// Write records the frame and, when simulating, queues the receiver's answer
func (l *MockLink) Write(p []byte) (int, error) {
	select {
	case <-l.closed:
		return 0, ErrLinkClosed
	default:
	}

	l.mutex.Lock()
	if l.writeErr != nil {
		err := l.writeErr
		l.mutex.Unlock()
		return 0, err
	}
	frame := make([]byte, len(p))
	copy(frame, p)
	l.written = append(l.written, frame)
	strength := l.config.Strength
	firmware := l.config.Firmware
	l.writeCond.Broadcast()
	l.mutex.Unlock()

	if l.config.Simulate && len(frame) > 0 {
		switch frame[0] {
		case 0x58:
			l.Inject([]byte{0x58, byte(strength >> 8), byte(strength), 0x0D})
		case 0x3F:
			l.Inject(append([]byte("VER"+firmware), 0x0D))
		}
	}
	return len(p), nil
}

// Close closes the mock link
func (l *MockLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.mutex.Lock()
		l.writeCond.Broadcast()
		l.mutex.Unlock()
	})
	return nil
}

// Inject queues bytes as if the receiver had sent them
func (l *MockLink) Inject(data []byte) {
	for _, b := range data {
		select {
		case l.incoming <- b:
		case <-l.closed:
			return
		}
	}
}

// Written returns a copy of every frame written so far
func (l *MockLink) Written() [][]byte {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	frames := make([][]byte, len(l.written))
	copy(frames, l.written)
	return frames
}

// WrittenCount returns the number of frames written so far
func (l *MockLink) WrittenCount() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.written)
}

// Reset forgets the frames written so far
func (l *MockLink) Reset() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.written = nil
}

// WaitForWrites blocks until at least n frames were written or the timeout passes
func (l *MockLink) WaitForWrites(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		l.mutex.Lock()
		l.writeCond.Broadcast()
		l.mutex.Unlock()
	})
	defer timer.Stop()

	l.mutex.Lock()
	defer l.mutex.Unlock()
	for len(l.written) < n {
		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-l.closed:
			return false
		default:
		}
		l.writeCond.Wait()
	}
	return true
}

// SetStrength changes the simulated signal strength
func (l *MockLink) SetStrength(strength int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.config.Strength = strength
}

// SetFirmware changes the simulated firmware version
func (l *MockLink) SetFirmware(version string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.config.Firmware = version
}

// FailReads makes every following Read return err
func (l *MockLink) FailReads(err error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.readErr = err
}

// FailWrites makes every following Write return err
func (l *MockLink) FailWrites(err error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.writeErr = err
}
