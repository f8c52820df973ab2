package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dougsko/rx320d/pkg/config"
	"github.com/dougsko/rx320d/pkg/device"
	"github.com/dougsko/rx320d/pkg/engine"
	"github.com/dougsko/rx320d/pkg/hardware"
	"github.com/dougsko/rx320d/pkg/logging"
	"github.com/dougsko/rx320d/pkg/rx320"
	"github.com/dougsko/rx320d/pkg/storage"
	"github.com/gin-gonic/gin"
)

// RX320Daemon ties the device session to its control port, the telemetry
// store and the optional HTTP API
type RX320Daemon struct {
	config    *config.Config
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startTime time.Time

	// Core components
	session   *device.Session
	server    *engine.Server
	store     *storage.TelemetryStore
	recorder  *storage.Recorder
	hub       *smeterHub
	router    *gin.Engine
	webServer *http.Server
}

// NewRX320Daemon opens the serial link and builds every component. Nothing
// runs until Start.
func NewRX320Daemon(cfg *config.Config) (*RX320Daemon, error) {
	link, err := hardware.OpenLink(hardware.LinkConfig{
		Device:      cfg.Radio.Device,
		BaudRate:    cfg.Radio.BaudRate,
		ReadTimeout: cfg.ReadTimeout(),
		Mock:        cfg.Radio.Mock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open receiver link: %w", err)
	}

	store, err := storage.NewTelemetryStore(cfg.Storage.DatabasePath, cfg.Storage.MaxSamples)
	if err != nil {
		link.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := device.NewSession(link, device.Options{PollInterval: cfg.PollInterval()})

	daemon := &RX320Daemon{
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
		session:   session,
		server:    engine.NewServer(cfg.ControlAddress(), session, nil),
		store:     store,
		hub:       newSMeterHub(),
	}
	daemon.recorder = storage.NewRecorder(store, func() device.Optional {
		return session.Get(device.FieldFrequency)
	})

	session.AddObserver(daemon.recorder.Observe)
	session.AddObserver(daemon.hub.Observe)

	daemon.setupWebServer()
	return daemon, nil
}

// Start runs the session, sends the init sequence and opens the listeners
func (d *RX320Daemon) Start() error {
	logging.Info("daemon", "Starting rx320d daemon...")

	if err := d.session.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start device session: %w", err)
	}

	if err := d.initialize(); err != nil {
		return fmt.Errorf("failed to initialize receiver: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.recorder.Run(d.ctx)
	}()

	if err := d.server.Start(); err != nil {
		return err
	}

	if d.config.Web.Enabled {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			logging.Infof("daemon", "Starting web server on %s", d.webServer.Addr)
			if err := d.webServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Errorf("daemon", "Web server error: %v", err)
			}
		}()
	}

	return nil
}

type initStep struct {
	name string
	run  func() (device.Result, error)
}

// initialize sends the startup sequence to the receiver
func (d *RX320Daemon) initialize() error {
	seq := d.config.Init

	filter, ok := rx320.FilterIndex(seq.FilterBandwidth)
	if !ok {
		return fmt.Errorf("no filter with bandwidth %d Hz", seq.FilterBandwidth)
	}

	steps := []initStep{
		{"volume", func() (device.Result, error) { return d.session.SetVolume(seq.Volume) }},
		{"mode", func() (device.Result, error) { return d.session.SetMode(seq.Mode) }},
		{"agc", func() (device.Result, error) { return d.session.SetAGC(seq.AGC) }},
		{"filter", func() (device.Result, error) { return d.session.SetFilter(filter) }},
		{"frequency", func() (device.Result, error) { return d.session.SetFrequency(seq.Frequency, 0) }},
		{"line volume", func() (device.Result, error) { return d.session.SetLineVolume(seq.LineVolume) }},
		{"speaker volume", func() (device.Result, error) { return d.session.SetSpeakerVolume(seq.SpeakerVolume) }},
	}
	if seq.QueryFirmware {
		steps = append(steps, initStep{"firmware query", d.session.QueryFirmware})
	}

	for _, step := range steps {
		result, err := step.run()
		if err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		if result == device.Ignored {
			logging.Warnf("daemon", "Receiver init step %s was ignored", step.name)
		}
	}

	logging.Info("daemon", "Receiver initialized", map[string]interface{}{
		"frequency": seq.Frequency,
		"mode":      rx320.Mode(seq.Mode).String(),
		"filter":    seq.FilterBandwidth,
	})
	return nil
}

// Done is closed when the device session ends
func (d *RX320Daemon) Done() <-chan struct{} {
	return d.session.Done()
}

// Err returns the link error that ended the session, if any
func (d *RX320Daemon) Err() error {
	return d.session.Err()
}

// Stop stops the daemon gracefully
func (d *RX320Daemon) Stop() error {
	logging.Info("daemon", "Stopping daemon...")

	if d.webServer != nil && d.config.Web.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.webServer.Shutdown(ctx); err != nil {
			logging.Warnf("daemon", "Web server shutdown error: %v", err)
		}
	}

	if err := d.server.Stop(); err != nil {
		logging.Warnf("daemon", "Control server shutdown error: %v", err)
	}

	d.hub.Close()
	sessionErr := d.session.Stop()

	// The recorder flushes once the context is cancelled
	d.cancel()
	d.wg.Wait()

	if err := d.store.Close(); err != nil {
		logging.Warnf("daemon", "Telemetry store close error: %v", err)
	}

	logging.Info("daemon", "Daemon stopped")
	return sessionErr
}

// setupWebServer initializes the HTTP router and server
func (d *RX320Daemon) setupWebServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	logger := logging.GetGlobalLogger()
	router.Use(
		gin.LoggerWithWriter(logger.Writer("http", logging.LevelDebug)),
		gin.RecoveryWithWriter(logger.Writer("http", logging.LevelError)),
	)

	api := router.Group("/api/v1")
	{
		api.GET("/radio", d.handleGetRadio)
		api.PUT("/radio/frequency", d.handleSetFrequency)
		api.PUT("/radio/mode", d.handleSetMode)
		api.PUT("/radio/filter", d.handleSetFilter)
		api.PUT("/radio/agc", d.handleSetAGC)
		api.PUT("/radio/volume", d.handleSetVolume)
		api.POST("/radio/firmware", d.handleQueryFirmware)
		api.GET("/serial/ports", d.handleGetSerialPorts)
		api.GET("/smeter/history", d.handleGetSMeterHistory)
		api.GET("/smeter/stats", d.handleGetSMeterStats)
	}
	router.GET("/ws/smeter", d.handleSMeterWebSocket)

	d.router = router
	d.webServer = &http.Server{
		Addr:    d.config.WebAddress(),
		Handler: router,
	}
}
