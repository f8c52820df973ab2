// Package engine serves the text control protocol and maps each command onto
// the shared device session.
package engine

import (
	"errors"

	"github.com/dougsko/rx320d/pkg/device"
	"github.com/dougsko/rx320d/pkg/logging"
	"github.com/dougsko/rx320d/pkg/protocol"
)

// Radio is the part of the device session the control protocol drives
type Radio interface {
	SetFrequency(freq, cwbfo int) (device.Result, error)
	SetMode(mode int) (device.Result, error)
	SetFilter(index int) (device.Result, error)
	SetAGC(level int) (device.Result, error)
	SetLineVolume(volume int) (device.Result, error)
	SetSpeakerVolume(volume int) (device.Result, error)
	Get(field device.Field) device.Optional
}

// queryFields maps GET commands onto cached session fields
var queryFields = map[string]device.Field{
	protocol.CmdGetMode:    device.FieldMode,
	protocol.CmdGetFilter:  device.FieldFilter,
	protocol.CmdGetAGC:     device.FieldAGC,
	protocol.CmdGetSMeter:  device.FieldStrength,
	protocol.CmdGetVol:     device.FieldSpeakerVolume,
	protocol.CmdGetLineVol: device.FieldLineVolume,
	protocol.CmdGetFreq:    device.FieldFrequency,
}

// Handler turns command lines into session calls and reply lines
type Handler struct {
	radio  Radio
	logger *logging.Logger
}

// NewHandler creates a handler driving radio
func NewHandler(radio Radio, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handler{radio: radio, logger: logger}
}

// HandleLine executes one command line and returns the reply without a newline
func (h *Handler) HandleLine(line string) string {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		h.logger.Debugf("CONTROL", "Rejected %q: %v", line, err)
		return protocol.ReplyError
	}
	return h.Execute(cmd)
}

// Execute runs a parsed command. Ignored setters still reply Done.
func (h *Handler) Execute(cmd *protocol.Command) string {
	if field, ok := queryFields[cmd.Keyword]; ok {
		return h.radio.Get(field).String()
	}

	if err := h.apply(cmd); err != nil {
		if errors.Is(err, device.ErrSessionClosed) {
			h.logger.Debugf("CONTROL", "%s after session closed", cmd)
		} else {
			h.logger.Warnf("CONTROL", "%s failed: %v", cmd, err)
		}
		return protocol.ReplyError
	}
	return protocol.ReplyDone
}

func (h *Handler) apply(cmd *protocol.Command) error {
	var err error
	switch cmd.Keyword {
	case protocol.CmdAll:
		// Mode and filter first so tuning uses the new values
		if _, err = h.radio.SetMode(cmd.Args[1]); err != nil {
			return err
		}
		if _, err = h.radio.SetFilter(cmd.Args[2]); err != nil {
			return err
		}
		_, err = h.radio.SetFrequency(cmd.Args[0], 0)
	case protocol.CmdFreq:
		_, err = h.radio.SetFrequency(cmd.Args[0], 0)
	case protocol.CmdVol:
		_, err = h.radio.SetSpeakerVolume(cmd.Args[0])
	case protocol.CmdLineVol:
		_, err = h.radio.SetLineVolume(cmd.Args[0])
	case protocol.CmdMode:
		_, err = h.radio.SetMode(cmd.Args[0])
	case protocol.CmdFilter:
		_, err = h.radio.SetFilter(cmd.Args[0])
	case protocol.CmdAGC:
		_, err = h.radio.SetAGC(cmd.Args[0])
	default:
		err = protocol.ErrUnknownCommand
	}
	return err
}
