// Package service runs SCTP INIT probers on the transmit engine,
// together with the optional pprof service.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/database64128/sctptx-go/conn"
	"github.com/database64128/sctptx-go/cookie"
	"github.com/database64128/sctptx-go/jsonhelper"
	"github.com/database64128/sctptx-go/pprof"
	"github.com/database64128/sctptx-go/sink"
	"github.com/database64128/sctptx-go/tslog"
	"github.com/database64128/sctptx-go/tx"
	"go.uber.org/zap"
)

const (
	// defaultCycleInterval is the default interval between two timer polls of a worker.
	defaultCycleInterval = 10 * time.Millisecond

	// defaultMaxInitRetransmits is Max.Init.Retransmits from RFC 4960 section 15.
	defaultMaxInitRetransmits = 8

	// defaultMaxAssocRetransmits is Association.Max.Retrans from RFC 4960 section 15.
	defaultMaxAssocRetransmits = 10

	// defaultPoolSize is the default number of packet buffers per worker.
	defaultPoolSize = 4096

	// minPoolSize is the smallest allowed buffer pool.
	minPoolSize = 16

	// maxWorkers caps the number of workers.
	maxWorkers = 1024
)

var errNoAssociations = errors.New("no associations to probe")

// Service is implemented by the services a [Manager] runs.
type Service interface {
	// String returns the service's name.
	String() string

	// Start starts the service.
	Start(ctx context.Context) error

	// Stop stops the service.
	Stop() error
}

// AssociationConfig is one association to probe.
type AssociationConfig struct {
	// Local is the source address and port. It must resolve to the same family as Remote.
	Local conn.Endpoint `json:"local" toml:"local"`

	// Remote is the peer address and port.
	Remote conn.Endpoint `json:"remote" toml:"remote"`
}

// SinkConfig selects where finished packets go.
type SinkConfig struct {
	// PcapPath, if not empty, is the path of a capture file that records every packet.
	PcapPath string `json:"pcapPath" toml:"pcapPath"`

	// Raw, if not nil, sends packets on raw IP sockets.
	// Otherwise packets are discarded after capture.
	Raw *sink.RawConfig `json:"raw" toml:"raw"`
}

// Config stores configurations for the prober and its companion services.
// It may be marshaled as or unmarshaled from JSON or TOML.
type Config struct {
	// Workers is the number of worker threads. Association i is owned by worker i mod Workers.
	Workers int `json:"workers" toml:"workers"`

	// PinWorkers locks each worker to a CPU.
	PinWorkers bool `json:"pinWorkers" toml:"pinWorkers"`

	// CycleInterval is the interval between two timer polls of a worker.
	CycleInterval jsonhelper.Duration `json:"cycleInterval" toml:"cycleInterval"`

	// MaxInitRetransmits bounds INIT and COOKIE_ECHO retransmissions.
	MaxInitRetransmits int `json:"maxInitRetransmits" toml:"maxInitRetransmits"`

	// MaxAssocRetransmits bounds SHUTDOWN and SHUTDOWN_ACK retransmissions.
	MaxAssocRetransmits int `json:"maxAssocRetransmits" toml:"maxAssocRetransmits"`

	// PoolSize is the number of packet buffers owned by each worker.
	PoolSize int `json:"poolSize" toml:"poolSize"`

	// CookieKey is the hex-encoded BLAKE2b key that authenticates state cookies.
	// If empty, a random key is generated at startup.
	CookieKey string `json:"cookieKey" toml:"cookieKey"`

	Engine       tx.Config           `json:"engine" toml:"engine"`
	Sink         SinkConfig          `json:"sink" toml:"sink"`
	Associations []AssociationConfig `json:"associations" toml:"associations"`

	Pprof    pprof.Config `json:"pprof" toml:"pprof"`
	PprofLog tslog.Config `json:"pprofLog" toml:"pprofLog"`
}

// CheckAndApplyDefaults checks and applies default values to the configuration.
func (sc *Config) CheckAndApplyDefaults() error {
	if len(sc.Associations) == 0 {
		return errNoAssociations
	}

	switch {
	case sc.Workers > 0 && sc.Workers <= maxWorkers:
	case sc.Workers == 0:
		sc.Workers = 1
	default:
		return fmt.Errorf("workers out of range [0, %d]: %d", maxWorkers, sc.Workers)
	}

	switch {
	case sc.CycleInterval > 0:
	case sc.CycleInterval == 0:
		sc.CycleInterval = jsonhelper.Duration(defaultCycleInterval)
	default:
		return fmt.Errorf("negative cycle interval: %s", time.Duration(sc.CycleInterval))
	}

	switch {
	case sc.MaxInitRetransmits > 0:
	case sc.MaxInitRetransmits == 0:
		sc.MaxInitRetransmits = defaultMaxInitRetransmits
	default:
		return fmt.Errorf("negative max init retransmits: %d", sc.MaxInitRetransmits)
	}

	switch {
	case sc.MaxAssocRetransmits > 0:
	case sc.MaxAssocRetransmits == 0:
		sc.MaxAssocRetransmits = defaultMaxAssocRetransmits
	default:
		return fmt.Errorf("negative max association retransmits: %d", sc.MaxAssocRetransmits)
	}

	switch {
	case sc.PoolSize >= minPoolSize:
	case sc.PoolSize == 0:
		sc.PoolSize = defaultPoolSize
	default:
		return fmt.Errorf("pool size must be at least %d: %d", minPoolSize, sc.PoolSize)
	}

	if sc.CookieKey != "" {
		if _, err := sc.cookieMAC(); err != nil {
			return err
		}
	}

	if err := sc.Engine.CheckAndApplyDefaults(); err != nil {
		return fmt.Errorf("bad engine config: %w", err)
	}
	return nil
}

// cookieMAC returns the configured cookie MAC, or nil to let the engine pick a random key.
func (sc *Config) cookieMAC() (cookie.MAC, error) {
	if sc.CookieKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(sc.CookieKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cookie key: %w", err)
	}
	mac, err := cookie.NewBLAKE2b(key)
	if err != nil {
		return nil, fmt.Errorf("bad cookie key: %w", err)
	}
	return mac, nil
}

// Manager initializes the service manager.
func (sc *Config) Manager(ctx context.Context, logger *zap.Logger) (*Manager, error) {
	if err := sc.CheckAndApplyDefaults(); err != nil {
		return nil, err
	}

	p, err := sc.Prober(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create prober: %w", err)
	}
	services := []Service{p}

	if sc.Pprof.Enabled {
		services = append(services, sc.Pprof.NewService(sc.PprofLog.NewLogger(os.Stderr)))
	}

	return &Manager{services, logger}, nil
}

// Manager manages the services.
type Manager struct {
	services []Service
	logger   *zap.Logger
}

// Start starts all configured services.
func (m *Manager) Start(ctx context.Context) error {
	for _, s := range m.services {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s: %w", s.String(), err)
		}
		m.logger.Info("Started service", zap.Stringer("service", s))
	}
	return nil
}

// Stop stops all running services.
func (m *Manager) Stop() {
	for _, s := range m.services {
		if err := s.Stop(); err != nil {
			m.logger.Warn("Failed to stop service",
				zap.Stringer("service", s),
				zap.Error(err),
			)
		}
		m.logger.Info("Stopped service", zap.Stringer("service", s))
	}
}
