package engine

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/dougsko/rx320d/pkg/logging"
)

// Server accepts control connections and runs one handler loop per client
type Server struct {
	address string
	handler *Handler
	logger  *logging.Logger

	listener net.Listener
	running  bool
	mutex    sync.RWMutex
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer creates a control server for address (host:port) driving radio
func NewServer(address string, radio Radio, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Server{
		address: address,
		handler: NewHandler(radio, logger),
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start opens the listening socket and begins accepting clients
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}

	s.mutex.Lock()
	s.listener = listener
	s.running = true
	s.mutex.Unlock()

	s.logger.Infof("CONTROL", "Control server listening on %s", listener.Addr())

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

// Addr returns the listening address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connections returns the number of connected clients
func (s *Server) Connections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.conns)
}

// Stop closes the listener and every client connection, then waits for
// their handlers to return
func (s *Server) Stop() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = false
	err := s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.mutex.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) isRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// acceptConnections accepts clients until the listener is closed
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.isRunning() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Errorf("CONTROL", "Accept error: %v", err)
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}

		s.mutex.Lock()
		if !s.running {
			s.mutex.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mutex.Unlock()

		go s.handleConnection(conn)
	}
}

// handleConnection answers each line from one client, in order
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mutex.Lock()
		delete(s.conns, conn)
		s.mutex.Unlock()
		conn.Close()
	}()

	clientLog := s.logger.WithFields(map[string]interface{}{
		"client": conn.RemoteAddr().String(),
	})
	clientLog.Info("CONTROL", "Client connected")

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		reply := s.handler.HandleLine(scanner.Text())
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			clientLog.Debugf("CONTROL", "Write failed: %v", err)
			return
		}
	}

	if err := scanner.Err(); err != nil && s.isRunning() {
		clientLog.Debugf("CONTROL", "Read failed: %v", err)
	}
	clientLog.Info("CONTROL", "Client disconnected")
}
