package service

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"sync"
	"time"

	"github.com/database64128/sctptx-go/assoc"
	"github.com/database64128/sctptx-go/chunk"
	"github.com/database64128/sctptx-go/cookie"
	"github.com/database64128/sctptx-go/pktbuf"
	"github.com/database64128/sctptx-go/sink"
	"github.com/database64128/sctptx-go/timer"
	"github.com/database64128/sctptx-go/tx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Prober sends INIT on every configured association and drives the
// retransmission and shutdown timers of the resulting associations.
//
// Prober implements [Service].
type Prober struct {
	logger *zap.Logger
	cfg    Config
	paths  []assoc.SubConn
	mac    cookie.MAC

	// now is the clock shared by the engine and the timer wheels.
	now func() time.Time

	engine  *tx.Engine
	sinks   []io.Closer
	workers []*worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Prober resolves the configured associations and returns a prober that has not been started.
// sc must have been checked by [Config.CheckAndApplyDefaults].
func (sc *Config) Prober(ctx context.Context, logger *zap.Logger) (*Prober, error) {
	mac, err := sc.cookieMAC()
	if err != nil {
		return nil, err
	}

	paths := make([]assoc.SubConn, len(sc.Associations))
	for i, ac := range sc.Associations {
		local, err := ac.Local.ResolveIPPort(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve local endpoint %s of association %d: %w", ac.Local, i, err)
		}
		remote, err := ac.Remote.ResolveIPPort(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve remote endpoint %s of association %d: %w", ac.Remote, i, err)
		}
		if local.Addr().Is4() != remote.Addr().Is4() {
			return nil, fmt.Errorf("association %d mixes address families: %s -> %s", i, local, remote)
		}
		paths[i] = subConnFrom(local, remote)
	}

	return &Prober{
		logger: logger,
		cfg:    *sc,
		paths:  paths,
		mac:    mac,
		now:    time.Now,
	}, nil
}

func subConnFrom(local, remote netip.AddrPort) assoc.SubConn {
	return assoc.SubConn{
		Local:      local.Addr().Unmap(),
		Remote:     remote.Addr().Unmap(),
		LocalPort:  chunk.PortFrom(local.Port()),
		RemotePort: chunk.PortFrom(remote.Port()),
	}
}

// String implements [Service.String].
func (p *Prober) String() string {
	return "prober"
}

// Start implements [Service.Start].
func (p *Prober) Start(ctx context.Context) error {
	top, err := p.openSinks(ctx)
	if err != nil {
		return err
	}
	if err = p.newWorkers(top); err != nil {
		return multierr.Append(err, p.closeSinks())
	}

	ctx, p.cancel = context.WithCancel(ctx)
	interval := time.Duration(p.cfg.CycleInterval)
	for _, w := range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run(ctx, interval, p.cfg.PinWorkers)
		}()
	}

	p.logger.Info("Started prober",
		zap.Int("workers", len(p.workers)),
		zap.Int("associations", len(p.paths)),
		zap.Duration("cycleInterval", interval),
		zap.Stringer("checksum", p.cfg.Engine.Checksum),
	)
	return nil
}

// openSinks opens the configured sinks and returns the stage that receives finished packets.
func (p *Prober) openSinks(ctx context.Context) (tx.Stage, error) {
	var top tx.Stage
	if rc := p.cfg.Sink.Raw; rc != nil {
		r, err := rc.NewRaw(ctx, p.logger)
		if err != nil {
			return nil, err
		}
		p.sinks = append(p.sinks, r)
		top = r
	} else {
		top = &sink.Discard{}
	}

	if path := p.cfg.Sink.PcapPath; path != "" {
		pc, err := sink.OpenPcap(p.logger, path, top)
		if err != nil {
			return nil, multierr.Append(err, p.closeSinks())
		}
		p.sinks = append(p.sinks, pc)
		top = pc
	}
	return top, nil
}

// newWorkers creates the engine and the workers, and shards the associations among them.
func (p *Prober) newWorkers(top tx.Stage) error {
	engine, err := p.cfg.Engine.NewEngine(p.logger, tx.Deps{
		MAC:       p.mac,
		Now:       p.now,
		IPLookup4: top,
		IPLookup6: top,
	})
	if err != nil {
		return err
	}
	p.engine = engine

	p.workers = make([]*worker, p.cfg.Workers)
	for i := range p.workers {
		wheel := timer.NewWheel(p.now)
		p.workers[i] = &worker{
			logger:              p.logger,
			engine:              engine,
			thread:              tx.NewThread(i, pktbuf.NewPool(pktbuf.DefaultBufferSize, p.cfg.PoolSize), assoc.NewTable(), wheel),
			wheel:               wheel,
			rtoMax:              time.Duration(engine.Config().RTOMax),
			maxInitRetransmits:  p.cfg.MaxInitRetransmits,
			maxAssocRetransmits: p.cfg.MaxAssocRetransmits,
		}
	}

	for i, path := range p.paths {
		w := p.workers[i%len(p.workers)]
		if err := w.thread.Assocs.Add(engine.NewAssociation(uint32(i+1), path)); err != nil {
			return err
		}
	}
	return nil
}

// Stop implements [Service.Stop].
// Workers shut down their established associations and flush before the sinks are closed.
func (p *Prober) Stop() error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	p.wg.Wait()
	return p.closeSinks()
}

// closeSinks closes the sinks in reverse order of opening, so capture sees every packet first.
func (p *Prober) closeSinks() error {
	var err error
	for i := len(p.sinks) - 1; i >= 0; i-- {
		err = multierr.Append(err, p.sinks[i].Close())
	}
	p.sinks = nil
	return err
}
