// Package gateway accepts antenna observations from reader devices
// over WebSocket and appends them to the raw read store.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourusername/finish-line/internal/config"
	"github.com/yourusername/finish-line/internal/metrics"
	"github.com/yourusername/finish-line/internal/models"
	"github.com/yourusername/finish-line/internal/repository"
)

// Server terminates reader device connections. Each device holds one
// WebSocket and streams observation messages, singly or in bursts; the
// gateway appends them without judging content. Garbage chip codes are
// valid observations, the pipeline sorts them out later.
type Server struct {
	store    repository.RawReadRepository
	cfg      *config.GatewayConfig
	upgrader websocket.Upgrader
	server   *http.Server
	logger   *logrus.Entry

	mu          sync.Mutex
	connections int
}

// NewServer creates a new gateway server
func NewServer(store repository.RawReadRepository, cfg *config.GatewayConfig, baseLogger *logrus.Logger) *Server {
	return &Server{
		store: store,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// readers are field hardware, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: baseLogger.WithField("component", "gateway"),
	}
}

// Start runs the gateway listener until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleReader)

	s.server = &http.Server{
		Addr:         s.cfg.ListenAddress,
		Handler:      mux,
		ReadTimeout:  0, // long-lived streams
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	s.logger.WithField("address", s.cfg.ListenAddress).Info("Gateway listening for readers")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and closes the listener
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("Gateway shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Connections returns the number of connected readers
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}

// handleReader upgrades one device connection and consumes its
// observation stream. A per-connection rate limiter sheds load during
// read storms without penalizing other devices.
func (s *Server) handleReader(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	s.mu.Lock()
	s.connections++
	metrics.GatewayConnections.Set(float64(s.connections))
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.connections--
		metrics.GatewayConnections.Set(float64(s.connections))
		s.mu.Unlock()
	}()

	remote := r.RemoteAddr
	s.logger.WithField("remote", remote).Info("Reader connected")

	limiter := rate.NewLimiter(rate.Limit(s.cfg.ReadsPerSecond), s.cfg.Burst)

	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WithError(err).WithField("remote", remote).Warn("Reader connection lost")
			} else {
				s.logger.WithField("remote", remote).Info("Reader disconnected")
			}
			return
		}

		observations, err := decodeObservations(raw)
		if err != nil {
			metrics.RecordGatewayRejection()
			s.logger.WithError(err).WithField("remote", remote).Warn("Malformed observation message")
			continue
		}

		if !limiter.AllowN(time.Now(), len(observations)) {
			metrics.RecordGatewayRejection()
			s.logger.WithField("remote", remote).Warn("Reader exceeding rate limit, dropping burst")
			continue
		}

		if err := s.append(r.Context(), observations); err != nil {
			s.logger.WithError(err).WithField("remote", remote).Error("Failed to append observations")
		}
	}
}

// decodeObservations accepts a single observation object or an array of
// them, the two shapes readers emit.
func decodeObservations(raw json.RawMessage) ([]models.Observation, error) {
	trimmed := raw
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\t' || trimmed[0] == '\n' || trimmed[0] == '\r') {
		trimmed = trimmed[1:]
	}

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []models.Observation
		if err := json.Unmarshal(raw, &batch); err != nil {
			return nil, err
		}
		return validObservations(batch)
	}

	var single models.Observation
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return validObservations([]models.Observation{single})
}

func validObservations(observations []models.Observation) ([]models.Observation, error) {
	for _, obs := range observations {
		if obs.EventID == uuid.Nil || obs.ReaderDeviceID == "" || obs.ChipCode == "" || obs.TimestampUTC.IsZero() {
			return nil, errIncompleteObservation
		}
	}
	return observations, nil
}

var errIncompleteObservation = errors.New("incomplete observation")

func (s *Server) append(ctx context.Context, observations []models.Observation) error {
	if len(observations) == 1 {
		if err := s.store.Append(ctx, models.NewRawRead(observations[0])); err != nil {
			return err
		}
		metrics.RecordObservation()
		return nil
	}

	reads := make([]*models.RawRead, len(observations))
	for i, obs := range observations {
		reads[i] = models.NewRawRead(obs)
	}
	if err := s.store.AppendBatch(ctx, reads); err != nil {
		return err
	}
	for range reads {
		metrics.RecordObservation()
	}
	return nil
}
