package cbconfig

import (
	"context"
	"sync"
	"time"

	"github.com/couchbaselabs/gocbcorex/corebase/log"
	"github.com/couchbaselabs/gocbcorex/memdx"
)

// Poller periodically issues GET_CLUSTER_CONFIG against a live memdx.Client
// and broadcasts each config it decodes to every subscriber; a poll that
// returns the same revision as the last one is broadcast again.
type Poller struct {
	client   *memdx.Client
	hostname string
	interval time.Duration
	log      log.Logger

	mu          sync.Mutex
	subscribers map[chan *TerseConfig]struct{}

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPoller starts polling immediately in a background goroutine.
func NewPoller(client *memdx.Client, hostname string, interval time.Duration) *Poller {
	p := &Poller{
		client:      client,
		hostname:    hostname,
		interval:    interval,
		log:         log.New(log.SubsystemConfig),
		subscribers: make(map[chan *TerseConfig]struct{}),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	go p.run()
	return p
}

// Subscribe registers a channel that receives every config the poller
// decodes from this point on. The returned func unsubscribes; callers must
// call it to avoid leaking the channel's slot.
func (p *Poller) Subscribe() (ch chan *TerseConfig, unsubscribe func()) {
	ch = make(chan *TerseConfig, 1)
	p.mu.Lock()
	p.subscribers[ch] = struct{}{}
	p.mu.Unlock()
	return ch, func() {
		p.mu.Lock()
		delete(p.subscribers, ch)
		p.mu.Unlock()
	}
}

// Stop ends the poll loop, waits for it to exit, and closes the client it
// was handed at construction: the poller is its sole owner.
func (p *Poller) Stop() {
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	<-p.doneCh
	p.client.Close()
}

func (p *Poller) run() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.pollOnce()
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	op, err := p.client.Dispatch(ctx, memdx.Packet{
		Magic:  memdx.MagicReq,
		OpCode: memdx.OpCodeGetClusterConfig,
	}, memdx.DefaultClassifier)
	if err != nil {
		p.log.Warnf("config poll dispatch failed: %v", err)
		return
	}
	defer op.Close()

	pkt, err := op.Recv(ctx)
	if err != nil {
		p.log.Warnf("config poll recv failed: %v", err)
		return
	}
	if pkt.Status != memdx.StatusSuccess {
		return
	}

	cfg, err := Parse(pkt.Value, p.hostname)
	if err != nil {
		p.log.Warnf("config poll parse failed: %v", err)
		return
	}

	p.broadcast(cfg)
}

func (p *Poller) broadcast(cfg *TerseConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.subscribers {
		select {
		case ch <- cfg:
		default:
			// slow subscriber: drop rather than block the poll loop, it'll
			// pick up the next tick's config instead
		}
	}
}
