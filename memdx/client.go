package memdx

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"

	"github.com/couchbaselabs/gocbcorex/corebase"
	"github.com/couchbaselabs/gocbcorex/corebase/log"
)

// ResponseClassifier decides whether a just-delivered response packet is the
// last one expected for its opaque. Most KV ops are single-response and use
// DefaultClassifier; streaming ops (RANGE_SCAN and friends) supply one that
// inspects the packet's own "more follows" signal.
//
// This stands in for its per-packet caller handshake (register a
// one-shot "more_follows" reply per packet, await it, deregister on false):
// here the decision is made once at Dispatch time instead of once per
// packet, which keeps the read loop lock-free and non-blocking on the
// consumer while still satisfying the same externally observable contract
// -- the opaque is deregistered exactly when the last packet for it arrives.
type ResponseClassifier func(pkt Packet) (final bool)

// DefaultClassifier marks every response final, for request/response ops.
func DefaultClassifier(Packet) bool { return true }

type packetResult struct {
	pkt Packet
	err error
}

// PendingOp is its "Pending op": (opaque, response-channel, parent map
// ref). Streaming ops may deliver multiple packets before Recv returns an
// end-of-stream signal.
type PendingOp struct {
	opaque uint32
	ch     chan packetResult
	client *Client
}

// Opaque returns the correlator this op was registered under.
func (p *PendingOp) Opaque() uint32 { return p.opaque }

// Recv blocks for the next response packet. Returns corebase.KindCancelled
// when the client closed with this op still in flight (deregister enqueues
// a closed-in-flight cancellation in place of a real response).
func (p *PendingOp) Recv(ctx context.Context) (Packet, error) {
	select {
	case r := <-p.ch:
		return r.pkt, r.err
	case <-ctx.Done():
		p.client.deregister(p.opaque)
		return Packet{}, ctx.Err()
	}
}

// Close deregisters the op without waiting for further packets: it signals
// no more packets are expected and removes the opaque entry.
func (p *PendingOp) Close() {
	p.client.deregister(p.opaque)
}

// Client owns one TCP/TLS socket and speaks the framed KV protocol over it.
// Exactly one goroutine (the read loop) owns the read half; the write half
// is serialized by writeMu.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex

	opaqueMu      sync.Mutex
	opaqueMap     map[uint32]*PendingOp
	classifierMap map[uint32]ResponseClassifier
	nextOpaque    uint32 // atomic counter, first dispatched opaque is 1

	closed  int32
	doneCh  chan struct{}

	helloFeatures map[uint16]bool
	errorMap      map[string]interface{} // cached for this client's lifetime

	orphanReporter corebase.OrphanReporter
	log            log.Logger

	localAddr  net.Addr
	remoteAddr net.Addr

	collectionsEnabled bool
}

// NewClient wraps an already-connected socket. Bootstrap must be called
// exactly once before the client is handed to a pool.
func NewClient(conn net.Conn, orphanReporter corebase.OrphanReporter) *Client {
	if orphanReporter == nil {
		orphanReporter = corebase.NoopOrphanReporter{}
	}
	c := &Client{
		conn:           conn,
		opaqueMap:      make(map[uint32]*PendingOp),
		classifierMap:  make(map[uint32]ResponseClassifier),
		nextOpaque:     0,
		doneCh:         make(chan struct{}),
		orphanReporter: orphanReporter,
		log:            log.New(log.SubsystemMemdx),
		localAddr:      conn.LocalAddr(),
		remoteAddr:     conn.RemoteAddr(),
		helloFeatures:  make(map[uint16]bool),
	}
	go c.readLoop()
	return c
}

func (c *Client) LocalAddr() net.Addr  { return c.localAddr }
func (c *Client) RemoteAddr() net.Addr { return c.remoteAddr }

func (c *Client) isClosed() bool { return atomic.LoadInt32(&c.closed) != 0 }

// Dispatch registers a fresh opaque, writes the frame, and returns an op
// that yields 1..N responses
func (c *Client) Dispatch(ctx context.Context, pkt Packet, classifier ResponseClassifier) (*PendingOp, error) {
	if c.isClosed() {
		return nil, corebase.New(corebase.KindDispatchClosed, "client closed", nil)
	}
	if classifier == nil {
		classifier = DefaultClassifier
	}

	opaque := atomic.AddUint32(&c.nextOpaque, 1)
	pkt.Opaque = opaque

	op := &PendingOp{opaque: opaque, ch: make(chan packetResult, 4), client: c}
	c.register(opaque, op, classifier)

	buf, err := EncodeRequest(pkt)
	if err != nil {
		c.deregister(opaque)
		return nil, corebase.New(corebase.KindProtocolEncoding, "encode failed", err)
	}

	c.writeMu.Lock()
	_, err = c.conn.Write(buf)
	c.writeMu.Unlock()
	if err != nil {
		c.deregister(opaque)
		return nil, c.dispatchError(err)
	}

	return op, nil
}

// dispatchError annotates a write-side error with the remote socket
// address; response-side errors are annotated separately in bootstrap.go's
// responseError.
func (c *Client) dispatchError(err error) error {
	e := corebase.New(corebase.KindIo, "write failed", err)
	e.Endpoint = c.remoteAddr.String()
	return e
}

func (c *Client) register(opaque uint32, op *PendingOp, classifier ResponseClassifier) {
	c.opaqueMu.Lock()
	c.opaqueMap[opaque] = op
	c.classifierMap[opaque] = classifier
	c.opaqueMu.Unlock()
}

func (c *Client) deregister(opaque uint32) {
	c.opaqueMu.Lock()
	op, ok := c.opaqueMap[opaque]
	delete(c.opaqueMap, opaque)
	delete(c.classifierMap, opaque)
	c.opaqueMu.Unlock()
	if ok {
		enqueueCancel(op)
	}
}

// enqueueCancel delivers a closed-in-flight cancellation in place of a real
// response. op.ch is never closed: deliver and Close both only ever send on
// it, which (unlike close) is always safe to race against another sender.
// The channel is buffered, so a Recv that already returned (or never comes)
// just leaves the cancellation unread.
func enqueueCancel(op *PendingOp) {
	cancel := corebase.New(corebase.KindCancelled, string(corebase.CancelReasonClosedInFlight), nil)
	select {
	case op.ch <- packetResult{err: cancel}:
	default:
	}
}

// readLoop is the single task owning the read half
func (c *Client) readLoop() {
	defer c.Close()
	hdr := make([]byte, HeaderLen)
	for {
		if _, err := readFull(c.conn, hdr); err != nil {
			return // EOF or read error: fall through to Close via defer
		}
		bodyLen := decodeBodyLen(hdr)
		buf := make([]byte, HeaderLen+bodyLen)
		copy(buf, hdr)
		if bodyLen > 0 {
			if _, err := readFull(c.conn, buf[HeaderLen:]); err != nil {
				return
			}
		}
		pkt, err := DecodeResponse(buf)
		if err != nil {
			c.log.Errorf("decode error, closing connection: %v", err)
			return
		}
		c.deliver(pkt)
	}
}

func (c *Client) deliver(pkt Packet) {
	c.opaqueMu.Lock()
	op, ok := c.opaqueMap[pkt.Opaque]
	classifier := c.classifierMap[pkt.Opaque]
	c.opaqueMu.Unlock()

	if !ok {
		c.orphanReporter.ReportOrphan(corebase.OrphanResponse{
			Endpoint: c.remoteAddr.String(),
			Opcode:   uint8(pkt.OpCode),
			Opaque:   pkt.Opaque,
			Status:   uint16(pkt.Status),
		})
		return
	}

	final := true
	if classifier != nil {
		final = classifier(pkt)
	}

	// deliver before deregistering so the consumer can still read this last
	// packet off the channel even though the opaque map entry is about to go.
	select {
	case op.ch <- packetResult{pkt: pkt}:
	case <-c.doneCh:
		return
	}

	if final {
		c.deregister(pkt.Opaque)
	}
}

// Close is idempotent: sets closed=true, closes the socket, signals the read
// loop to exit, and drains the opaque map with ClosedInFlight cancellation.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	close(c.doneCh)
	err := c.conn.Close()

	c.opaqueMu.Lock()
	pending := c.opaqueMap
	c.opaqueMap = make(map[uint32]*PendingOp)
	c.classifierMap = make(map[uint32]ResponseClassifier)
	c.opaqueMu.Unlock()

	for _, op := range pending {
		enqueueCancel(op)
	}
	return err
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func decodeBodyLen(hdr []byte) int {
	return int(binary.BigEndian.Uint32(hdr[8:12]))
}
