package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dougsko/rx320d/pkg/device"
	"github.com/dougsko/rx320d/pkg/hardware"
	"github.com/dougsko/rx320d/pkg/logging"
	"github.com/dougsko/rx320d/pkg/rx320"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const maxHistoryLimit = 10000

// statusFor maps session errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, device.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, rx320.ErrTuningRange), errors.Is(err, rx320.ErrUnsupportedMode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, device.ErrSessionClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respond writes the setter outcome and the state that followed it
func (d *RX320Daemon) respond(c *gin.Context, result device.Result, err error) {
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result": result.String(),
		"radio":  d.session.Snapshot(),
	})
}

// handleGetRadio returns the cached receiver state
func (d *RX320Daemon) handleGetRadio(c *gin.Context) {
	state := d.session.Snapshot()

	response := gin.H{
		"radio":             state,
		"control_clients":   d.server.Connections(),
		"websocket_clients": d.hub.count(),
		"uptime":            time.Since(d.startTime).Round(time.Second).String(),
		"version":           Version,
		"device":            d.config.Radio.Device,
		"mock":              d.config.Radio.Mock,
	}
	if state.Mode.Set {
		response["mode_name"] = rx320.Mode(state.Mode.Value).String()
	}
	if state.Filter.Set {
		response["filter_bandwidth"] = rx320.Filters[state.Filter.Value]
	}

	c.JSON(http.StatusOK, response)
}

// handleSetFrequency tunes the receiver
func (d *RX320Daemon) handleSetFrequency(c *gin.Context) {
	var req struct {
		Frequency *int `json:"frequency" binding:"required"`
		CWBFO     int  `json:"cw_bfo"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := d.session.SetFrequency(*req.Frequency, req.CWBFO)
	d.respond(c, result, err)
}

// handleSetMode accepts a mode code or a mode name
func (d *RX320Daemon) handleSetMode(c *gin.Context) {
	var req struct {
		Mode *int   `json:"mode"`
		Name string `json:"name"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var mode int
	switch {
	case req.Mode != nil:
		mode = *req.Mode
	case req.Name != "":
		parsed, ok := rx320.ParseMode(req.Name)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mode " + req.Name})
			return
		}
		mode = int(parsed)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode or name is required"})
		return
	}

	result, err := d.session.SetMode(mode)
	d.respond(c, result, err)
}

// handleSetFilter accepts a filter index or a bandwidth in Hz
func (d *RX320Daemon) handleSetFilter(c *gin.Context) {
	var req struct {
		Filter    *int `json:"filter"`
		Bandwidth int  `json:"bandwidth"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var index int
	switch {
	case req.Filter != nil:
		index = *req.Filter
	case req.Bandwidth != 0:
		found, ok := rx320.FilterIndex(req.Bandwidth)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no filter with bandwidth " + strconv.Itoa(req.Bandwidth) + " Hz"})
			return
		}
		index = found
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "filter or bandwidth is required"})
		return
	}

	result, err := d.session.SetFilter(index)
	d.respond(c, result, err)
}

// handleSetAGC sets the AGC level
func (d *RX320Daemon) handleSetAGC(c *gin.Context) {
	var req struct {
		AGC *int `json:"agc" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := d.session.SetAGC(*req.AGC)
	d.respond(c, result, err)
}

// handleSetVolume sets any of the combined, line and speaker volumes
func (d *RX320Daemon) handleSetVolume(c *gin.Context) {
	var req struct {
		Both    *int `json:"both"`
		Line    *int `json:"line"`
		Speaker *int `json:"speaker"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Both == nil && req.Line == nil && req.Speaker == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "one of both, line or speaker is required"})
		return
	}

	var (
		result device.Result
		err    error
	)
	if req.Both != nil {
		if result, err = d.session.SetVolume(*req.Both); err != nil {
			d.respond(c, result, err)
			return
		}
	}
	if req.Line != nil {
		if result, err = d.session.SetLineVolume(*req.Line); err != nil {
			d.respond(c, result, err)
			return
		}
	}
	if req.Speaker != nil {
		result, err = d.session.SetSpeakerVolume(*req.Speaker)
	}
	d.respond(c, result, err)
}

// handleQueryFirmware asks the receiver for its firmware version. The
// answer shows up in GET /api/v1/radio once the receiver replies.
func (d *RX320Daemon) handleQueryFirmware(c *gin.Context) {
	if _, err := d.session.QueryFirmware(); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queried"})
}

// handleGetSerialPorts lists serial ports present on this machine
func (d *RX320Daemon) handleGetSerialPorts(c *gin.Context) {
	ports, err := hardware.ListPorts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"serial_ports": ports})
}

// handleGetSMeterHistory returns recent strength samples, newest first
func (d *RX320Daemon) handleGetSMeterHistory(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	samples, err := d.store.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"samples": samples,
		"count":   len(samples),
	})
}

// handleGetSMeterStats summarizes stored samples, optionally over the last ?since=<duration>
func (d *RX320Daemon) handleGetSMeterStats(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil || window <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a positive duration such as 5m"})
			return
		}
		since = time.Now().Add(-window)
	}

	stats, err := d.store.Stats(since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":   stats,
		"dropped": d.recorder.Dropped(),
	})
}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleSMeterWebSocket streams strength readings as they arrive
func (d *RX320Daemon) handleSMeterWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("http", "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, ok := d.hub.subscribe()
	if !ok {
		return
	}
	defer d.hub.unsubscribe(updates)

	logging.Debugf("http", "S-meter WebSocket client %s connected", conn.RemoteAddr())

	// Reads only detect the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(msg smeterMessage) error {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteJSON(msg)
	}

	if err := write(smeterMessage{Type: "smeter", Strength: d.session.Strength(), Timestamp: time.Now()}); err != nil {
		return
	}

	for {
		select {
		case msg, ok := <-updates:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
				return
			}
			if err := write(msg); err != nil {
				logging.Debugf("http", "S-meter WebSocket write error: %v", err)
				return
			}
		case <-gone:
			logging.Debugf("http", "S-meter WebSocket client %s disconnected", conn.RemoteAddr())
			return
		case <-d.ctx.Done():
			return
		}
	}
}
