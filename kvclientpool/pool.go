// Package kvclientpool maintains a fixed-size set of memdx.Client
// connections per KV endpoint and hands them out round robin.
package kvclientpool

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchbaselabs/gocbcorex/corebase"
	"github.com/couchbaselabs/gocbcorex/corebase/log"
	"github.com/couchbaselabs/gocbcorex/memdx"
)

// Config is everything one endpoint's pool needs to dial and bootstrap a
// fresh connection.
type Config struct {
	Address            corebase.EndpointAddress
	TLSEnabled         bool
	TLSConfig          *tls.Config
	NumConnections     int
	ConnectTimeout     time.Duration
	ConnectThrottle    time.Duration
	BootstrapOpts      memdx.BootstrapOptions
	OrphanReporter     corebase.OrphanReporter
}

// Settings is the subset of Config a pool can pick up without tearing down
// its already-live connections: everything except the endpoint address and
// slot count, which are fixed for a pool's lifetime. Reconfigure/
// updateBootstrapOpts apply a Settings change to future reconnect attempts
// only; a slot mid-connection keeps using whatever it dialed with.
type Settings struct {
	TLSEnabled      bool
	TLSConfig       *tls.Config
	ConnectTimeout  time.Duration
	ConnectThrottle time.Duration
	BootstrapOpts   memdx.BootstrapOptions
	OrphanReporter  corebase.OrphanReporter
}

type slot struct {
	mu                 sync.Mutex
	client             *memdx.Client
	lastConnectAttempt time.Time
}

// ClientPool owns NumConnections slots for one endpoint. A background
// watchdog keeps reconnecting dead slots, throttled so a consistently
// unreachable node doesn't spin.
type ClientPool struct {
	cfgMu sync.RWMutex
	cfg   Config

	log   log.Logger
	slots []*slot

	// fast is an atomic snapshot of currently-live clients, refreshed
	// whenever a slot's connection state changes. GetClient reads this
	// without taking any lock.
	fast atomic.Pointer[[]*memdx.Client]

	rrCounter uint64

	closed    int32
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewClientPool creates a pool and kicks off its connect loop; it does not
// block for any connection to come up.
func NewClientPool(cfg Config) *ClientPool {
	if cfg.NumConnections <= 0 {
		cfg.NumConnections = 1
	}
	p := &ClientPool{
		cfg:     cfg,
		log:     log.New(log.SubsystemKVPool),
		slots:   make([]*slot, cfg.NumConnections),
		closeCh: make(chan struct{}),
	}
	for i := range p.slots {
		p.slots[i] = &slot{}
	}
	empty := make([]*memdx.Client, 0)
	p.fast.Store(&empty)

	for _, s := range p.slots {
		go p.maintainSlot(s)
	}
	return p
}

// currentConfig returns a snapshot of the pool's config, safe to read
// without racing a concurrent Reconfigure/updateBootstrapOpts call.
func (p *ClientPool) currentConfig() Config {
	p.cfgMu.RLock()
	defer p.cfgMu.RUnlock()
	return p.cfg
}

// Address returns the endpoint this pool connects to.
func (p *ClientPool) Address() corebase.EndpointAddress {
	return p.currentConfig().Address
}

// Reconfigure updates every field a topology/settings change can safely
// touch without disrupting slots that are already connected: the new
// values apply starting with each slot's next reconnect.
func (p *ClientPool) Reconfigure(s Settings) {
	p.cfgMu.Lock()
	p.cfg.TLSEnabled = s.TLSEnabled
	p.cfg.TLSConfig = s.TLSConfig
	p.cfg.ConnectTimeout = s.ConnectTimeout
	p.cfg.ConnectThrottle = s.ConnectThrottle
	p.cfg.BootstrapOpts = s.BootstrapOpts
	p.cfg.OrphanReporter = s.OrphanReporter
	p.cfgMu.Unlock()
}

// updateBootstrapOpts swaps in new bootstrap credentials, taking effect on
// each slot's next reconnect rather than forcing one now.
func (p *ClientPool) updateBootstrapOpts(opts memdx.BootstrapOptions) {
	p.cfgMu.Lock()
	p.cfg.BootstrapOpts = opts
	p.cfgMu.Unlock()
}

// GetClient returns the next live client via round robin over the current
// fast snapshot, or a corebase.KindNoServerAssigned error if none of the
// slots have connected yet.
func (p *ClientPool) GetClient() (*memdx.Client, error) {
	list := *p.fast.Load()
	if len(list) == 0 {
		return nil, corebase.New(corebase.KindNoServerAssigned, "no live connections for endpoint", nil)
	}
	idx := atomic.AddUint64(&p.rrCounter, 1)
	return list[idx%uint64(len(list))], nil
}

// NumConnected reports how many slots currently hold a live client.
func (p *ClientPool) NumConnected() int {
	return len(*p.fast.Load())
}

// Close tears down every slot's connection and stops the watchdog.
func (p *ClientPool) Close() error {
	p.closeOnce.Do(func() {
		atomic.StoreInt32(&p.closed, 1)
		close(p.closeCh)
	})
	for _, s := range p.slots {
		s.mu.Lock()
		c := s.client
		s.client = nil
		s.mu.Unlock()
		if c != nil {
			c.Close()
		}
	}
	p.refreshFast()
	return nil
}

func (p *ClientPool) isClosed() bool { return atomic.LoadInt32(&p.closed) != 0 }

// maintainSlot owns one slot's connection lifecycle for the pool's entire
// lifetime: dial, bootstrap, wait for death, throttle, reconnect.
func (p *ClientPool) maintainSlot(s *slot) {
	for {
		if p.isClosed() {
			return
		}

		cfg := p.currentConfig()

		s.mu.Lock()
		since := time.Since(s.lastConnectAttempt)
		s.mu.Unlock()
		if wait := cfg.ConnectThrottle - since; wait > 0 {
			select {
			case <-time.After(wait):
			case <-p.closeCh:
				return
			}
		}

		s.mu.Lock()
		s.lastConnectAttempt = time.Now()
		s.mu.Unlock()

		client, err := p.dialAndBootstrap()
		if err != nil {
			p.log.Warnf("connect to %s failed: %v", cfg.Address, err)
			continue
		}

		// Re-check closed under the same lock Close() uses to read/clear
		// s.client: whichever of the two runs first for this slot is the
		// one that ends up closing this client, so a Close() racing the
		// moment bootstrap finishes can never be left owning nothing.
		s.mu.Lock()
		if p.isClosed() {
			s.mu.Unlock()
			client.Close()
			return
		}
		s.client = client
		s.mu.Unlock()
		p.refreshFast()

		p.waitForDeath(client)

		s.mu.Lock()
		if s.client == client {
			s.client = nil
		}
		s.mu.Unlock()
		p.refreshFast()
	}
}

// waitForDeath blocks until client's connection is no longer usable, by
// issuing a cheap no-op dispatch loop. A closed client's Dispatch fails
// immediately, ending the wait.
func (p *ClientPool) waitForDeath(client *memdx.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.closeCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := pingOnce(ctx, client)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (p *ClientPool) dialAndBootstrap() (*memdx.Client, error) {
	cfg := p.currentConfig()
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	addr := cfg.Address.String()

	var conn net.Conn
	var err error
	if cfg.TLSEnabled {
		conn, err = tls.DialWithDialer(&dialer, "tcp", addr, cfg.TLSConfig)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, corebase.New(corebase.KindConnectTimeout, "dial failed", err)
	}
	tuneSocket(conn)

	client := memdx.NewClient(conn, cfg.OrphanReporter)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if _, err := client.Bootstrap(ctx, cfg.BootstrapOpts); err != nil {
		return nil, err
	}
	return client, nil
}

// refreshFast rebuilds the atomic snapshot of live clients from the current
// slot state. Called on every connect/disconnect transition.
func (p *ClientPool) refreshFast() {
	list := make([]*memdx.Client, 0, len(p.slots))
	for _, s := range p.slots {
		s.mu.Lock()
		c := s.client
		s.mu.Unlock()
		if c != nil {
			list = append(list, c)
		}
	}
	p.fast.Store(&list)
}

func pingOnce(ctx context.Context, client *memdx.Client) error {
	op, err := client.Dispatch(ctx, memdx.Packet{Magic: memdx.MagicReq, OpCode: memdx.OpCodeGetErrorMap, Value: []byte{0x00, 0x02}}, memdx.DefaultClassifier)
	if err != nil {
		return err
	}
	defer op.Close()
	_, err = op.Recv(ctx)
	return err
}
