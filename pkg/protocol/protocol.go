// Package protocol parses the line-oriented text commands accepted on the
// control port.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrArity          = errors.New("wrong number of arguments")
	ErrArgument       = errors.New("argument is not an integer")
)

// Protocol commands
const (
	CmdAll        = "ALL"
	CmdFreq       = "FREQ"
	CmdVol        = "VOL"
	CmdLineVol    = "LINEVOL"
	CmdMode       = "MODE"
	CmdFilter     = "FILTER"
	CmdAGC        = "AGC"
	CmdGetMode    = "GETMODE"
	CmdGetFilter  = "GETFILTER"
	CmdGetAGC     = "GETAGC"
	CmdGetSMeter  = "GETSMETER"
	CmdGetVol     = "GETVOL"
	CmdGetLineVol = "GETLINEVOL"
	CmdGetFreq    = "GETFREQ"
)

// Replies
const (
	ReplyDone  = "Done"
	ReplyError = "ERROR"
	ReplyNA    = "NA"
)

// arity is the exact number of integer arguments each command takes
var arity = map[string]int{
	CmdAll:        3,
	CmdFreq:       1,
	CmdVol:        1,
	CmdLineVol:    1,
	CmdMode:       1,
	CmdFilter:     1,
	CmdAGC:        1,
	CmdGetMode:    0,
	CmdGetFilter:  0,
	CmdGetAGC:     0,
	CmdGetSMeter:  0,
	CmdGetVol:     0,
	CmdGetLineVol: 0,
	CmdGetFreq:    0,
}

// Command is one parsed control line
type Command struct {
	Keyword string
	Args    []int
}

// IsQuery reports whether the command only reads cached state
func (c *Command) IsQuery() bool {
	return strings.HasPrefix(c.Keyword, "GET")
}

// String formats the command the way a client would send it
func (c *Command) String() string {
	parts := []string{c.Keyword}
	for _, arg := range c.Args {
		parts = append(parts, strconv.Itoa(arg))
	}
	return strings.Join(parts, " ")
}

// ParseCommand parses a whitespace-separated command line. Keywords are
// case-sensitive and every argument must be an integer.
func ParseCommand(line string) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}

	keyword := fields[0]
	want, ok := arity[keyword]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, keyword)
	}

	if got := len(fields) - 1; got != want {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArity, keyword, want, got)
	}

	cmd := &Command{Keyword: keyword, Args: make([]int, 0, want)}
	for _, field := range fields[1:] {
		value, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrArgument, keyword, field)
		}
		cmd.Args = append(cmd.Args, value)
	}

	return cmd, nil
}
