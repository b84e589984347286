// Package tx implements the SCTP transmit path: chunk builders, IP header push and checksum,
// per-thread output batching, the transmit state machine, and send orchestrators.
package tx

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/database64128/sctptx-go/assoc"
	"github.com/database64128/sctptx-go/cookie"
	"github.com/pion/randutil"
	"go.uber.org/zap"
)

// TagSource generates verification tags.
type TagSource interface {
	Uint32() uint32
}

// Deps are the collaborators of an [Engine].
type Deps struct {
	// Tags generates initiate tags.
	// If nil, a crypto-seeded generator from randutil is used.
	Tags TagSource

	// MAC authenticates state cookies.
	// If nil, a BLAKE2b MAC with a random key is used.
	MAC cookie.MAC

	// Now returns the current time. If nil, [time.Now] is used.
	Now func() time.Time

	// Outstanding reports whether the association has unacknowledged DATA.
	// If nil, [assoc.Association.HasOutstanding] is used.
	Outstanding func(*assoc.Association) bool

	// IPLookup4 and IPLookup6 receive finished IPv4 and IPv6 packets.
	IPLookup4 Stage
	IPLookup6 Stage
}

// Engine is the transmit path shared by all worker threads.
// Per-thread state lives in [Thread], so Engine methods may be called
// concurrently on different threads.
type Engine struct {
	logger      *zap.Logger
	cfg         Config
	tags        TagSource
	mac         cookie.MAC
	now         func() time.Time
	outstanding func(*assoc.Association) bool
	ipLookup    [numFamilies]Stage
	output      outputStage
}

// NewEngine returns a new engine with the configuration and collaborators.
func (c Config) NewEngine(logger *zap.Logger, deps Deps) (*Engine, error) {
	if err := c.CheckAndApplyDefaults(); err != nil {
		return nil, err
	}
	if deps.IPLookup4 == nil || deps.IPLookup6 == nil {
		return nil, errors.New("missing IP lookup stage")
	}

	e := &Engine{
		logger:      logger,
		cfg:         c,
		tags:        deps.Tags,
		mac:         deps.MAC,
		now:         deps.Now,
		outstanding: deps.Outstanding,
		ipLookup:    [numFamilies]Stage{deps.IPLookup4, deps.IPLookup6},
	}

	if e.tags == nil {
		e.tags = randutil.NewMathRandomGenerator()
	}
	if e.mac == nil {
		var key [cookie.KeySize]byte
		if _, err := rand.Read(key[:]); err != nil {
			return nil, fmt.Errorf("failed to generate cookie key: %w", err)
		}
		mac, err := cookie.NewBLAKE2b(key[:])
		if err != nil {
			return nil, err
		}
		e.mac = mac
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.outstanding == nil {
		e.outstanding = (*assoc.Association).HasOutstanding
	}

	e.output.e = e
	return e, nil
}

// Config returns the engine's configuration with defaults applied.
func (e *Engine) Config() Config {
	return e.cfg
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// NewAssociation returns a closed association over one path with the initial RTO.
func (e *Engine) NewAssociation(id uint32, path assoc.SubConn) *assoc.Association {
	return &assoc.Association{
		ID:    id,
		State: assoc.StateClosed,
		RTO:   time.Duration(e.cfg.RTOInitial),
		Paths: []assoc.SubConn{path},
	}
}

// newTag returns a nonzero initiate tag.
func (e *Engine) newTag() uint32 {
	for {
		if tag := e.tags.Uint32(); tag != 0 {
			return tag
		}
	}
}

func (e *Engine) stage(dest Dest, fam Family) Stage {
	if dest == DestOutput {
		return &e.output
	}
	return e.ipLookup[fam]
}
