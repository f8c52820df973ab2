package device

import (
	"fmt"
	"time"

	"github.com/dougsko/rx320d/pkg/rx320"
	"github.com/dougsko/rx320d/pkg/verbose"
)

// readLoop reassembles frames from the link until the session ends
func (s *Session) readLoop() {
	defer s.wg.Done()

	var assembler rx320.FrameAssembler
	buf := make([]byte, 64)

	for {
		if s.ctx.Err() != nil {
			return
		}

		n, err := s.link.Read(buf)
		if err != nil {
			if s.ctx.Err() == nil {
				s.fail(fmt.Errorf("serial read failed: %w", err))
			}
			return
		}

		for _, b := range buf[:n] {
			if frame, ok := assembler.Feed(b); ok {
				s.handleFrame(frame)
			}
		}
	}
}

// pollLoop asks for signal strength, then sleeps, until the session ends
func (s *Session) pollLoop() {
	defer s.wg.Done()

	timer := time.NewTimer(s.options.PollInterval)
	defer timer.Stop()

	for {
		s.mutex.Lock()
		err := s.write(rx320.StrengthQueryFrame())
		s.mutex.Unlock()
		if err != nil {
			return
		}

		timer.Reset(s.options.PollInterval)
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}
	}
}

func (s *Session) handleFrame(frame []byte) {
	verbose.Frame("rx", frame)

	response := rx320.DecodeResponse(frame)
	switch response.Kind {
	case rx320.ResponseStrength:
		s.statusMutex.Lock()
		s.strength = response.Strength
		s.statusMutex.Unlock()
		s.notify(Event{Kind: response.Kind, Strength: response.Strength, Time: time.Now()})

	case rx320.ResponseFirmware:
		s.statusMutex.Lock()
		s.firmware = response.Firmware
		s.statusMutex.Unlock()
		s.logger.Infof(component, "Receiver firmware version %s", response.Firmware)
		s.notify(Event{Kind: response.Kind, Firmware: response.Firmware, Time: time.Now()})

	case rx320.ResponsePowerOn:
		s.logger.Info(component, "Receiver power-on notice")

	case rx320.ResponseUnrecognized:
		s.logger.Debug(component, "Receiver did not recognize a command")

	default:
		s.logger.Debugf(component, "Discarding %s frame % x", response.Kind, frame)
	}
}
