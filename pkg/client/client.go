// Package client talks to the rx320d control port.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dougsko/rx320d/pkg/protocol"
)

// ErrCommandFailed is returned when the daemon answers ERROR
var ErrCommandFailed = errors.New("command rejected by daemon")

// Client holds one control connection. It is safe for concurrent use;
// commands are sent one at a time.
type Client struct {
	address string
	timeout time.Duration

	mutex  sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewClient creates a client for the control port at address (host:port)
func NewClient(address string) *Client {
	return &Client{
		address: address,
		timeout: 5 * time.Second,
	}
}

// SetTimeout sets the dial and per-command timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.timeout = timeout
}

func (c *Client) connect() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.address, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.address, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

func (c *Client) reset() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
}

// SendCommand sends one command line and returns the reply without its newline
func (c *Client) SendCommand(cmd string) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.connect(); err != nil {
		return "", err
	}

	c.conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		c.reset()
		return "", fmt.Errorf("send error: %w", err)
	}

	reply, err := c.reader.ReadString('\n')
	if err != nil {
		c.reset()
		return "", fmt.Errorf("read error: %w", err)
	}

	return strings.TrimRight(reply, "\r\n"), nil
}

// Close closes the connection
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

func (c *Client) set(cmd string) error {
	reply, err := c.SendCommand(cmd)
	if err != nil {
		return err
	}
	if reply != protocol.ReplyDone {
		return fmt.Errorf("%w: %s -> %s", ErrCommandFailed, cmd, reply)
	}
	return nil
}

// get returns the value, or ok=false when the daemon answers NA
func (c *Client) get(cmd string) (value int, ok bool, err error) {
	reply, err := c.SendCommand(cmd)
	if err != nil {
		return 0, false, err
	}
	switch reply {
	case protocol.ReplyNA:
		return 0, false, nil
	case protocol.ReplyError:
		return 0, false, fmt.Errorf("%w: %s", ErrCommandFailed, cmd)
	}
	value, err = strconv.Atoi(reply)
	if err != nil {
		return 0, false, fmt.Errorf("unexpected reply to %s: %q", cmd, reply)
	}
	return value, true, nil
}

// Tune sets mode, filter and frequency in one command
func (c *Client) Tune(frequency, mode, filter int) error {
	return c.set(fmt.Sprintf("%s %d %d %d", protocol.CmdAll, frequency, mode, filter))
}

// SetFrequency tunes to frequency Hz
func (c *Client) SetFrequency(frequency int) error {
	return c.set(fmt.Sprintf("%s %d", protocol.CmdFreq, frequency))
}

// SetMode selects a mode code
func (c *Client) SetMode(mode int) error {
	return c.set(fmt.Sprintf("%s %d", protocol.CmdMode, mode))
}

// SetFilter selects a filter index
func (c *Client) SetFilter(index int) error {
	return c.set(fmt.Sprintf("%s %d", protocol.CmdFilter, index))
}

// SetAGC selects an AGC level
func (c *Client) SetAGC(level int) error {
	return c.set(fmt.Sprintf("%s %d", protocol.CmdAGC, level))
}

// SetVolume sets the speaker volume
func (c *Client) SetVolume(volume int) error {
	return c.set(fmt.Sprintf("%s %d", protocol.CmdVol, volume))
}

// SetLineVolume sets the line output volume
func (c *Client) SetLineVolume(volume int) error {
	return c.set(fmt.Sprintf("%s %d", protocol.CmdLineVol, volume))
}

// GetFrequency returns the tuned frequency; ok is false until it has been set
func (c *Client) GetFrequency() (int, bool, error) {
	return c.get(protocol.CmdGetFreq)
}

func (c *Client) GetMode() (int, bool, error) {
	return c.get(protocol.CmdGetMode)
}

func (c *Client) GetFilter() (int, bool, error) {
	return c.get(protocol.CmdGetFilter)
}

func (c *Client) GetAGC() (int, bool, error) {
	return c.get(protocol.CmdGetAGC)
}

func (c *Client) GetVolume() (int, bool, error) {
	return c.get(protocol.CmdGetVol)
}

func (c *Client) GetLineVolume() (int, bool, error) {
	return c.get(protocol.CmdGetLineVol)
}

// GetSMeter returns the last signal strength the receiver reported
func (c *Client) GetSMeter() (int, error) {
	value, _, err := c.get(protocol.CmdGetSMeter)
	return value, err
}
