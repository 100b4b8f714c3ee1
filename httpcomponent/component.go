// Package httpcomponent dispatches requests against one HTTP-based cluster
// service (query, analytics, search, or management) over a rotating set of
// node endpoints.
package httpcomponent

import (
	"bytes"
	"context"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teris-io/shortid"
	"github.com/valyala/fasthttp"

	"github.com/couchbaselabs/gocbcorex/corebase"
	"github.com/couchbaselabs/gocbcorex/corebase/log"
)

// Service names the cluster service a Component dispatches against; it
// picks the basic-auth service tag passed to Authenticator.Credentials.
type Service string

const (
	ServiceQuery      Service = "query"
	ServiceAnalytics  Service = "analytics"
	ServiceSearch     Service = "search"
	ServiceManagement Service = "mgmt"
)

// ReqParams bundles one request, mirroring query.go's BaseParams+ReqParams
// split: method/path/body/headers travel together, leaving endpoint choice
// and credentials to the component.
type ReqParams struct {
	Method          string
	Path            string
	Body            []byte
	Headers         map[string]string
	Endpoint        string // hint: dispatch to this endpoint id if non-empty and live
	OnBehalfOf      *corebase.OnBehalfOf
	ClientContextID string // auto-generated via shortid if empty
	Idempotent      bool   // GET/HEAD callers can leave this false; set explicitly for a safe-to-resend write
}

// Response is the subset of the HTTP response callers need; the fasthttp
// response is released back to its pool before Orchestrate returns.
type Response struct {
	StatusCode int
	Body       []byte
	Endpoint   string
}

// Component owns the live endpoint set for one service and a fasthttp
// client shared across every request against it.
type Component struct {
	service Service
	authn   corebase.Authenticator
	client  *fasthttp.Client
	log     log.Logger

	mu        sync.RWMutex
	endpoints map[string]string // endpoint id -> base URL, e.g. "https://node1:18093"

	rrCounter uint64
	ids       atomic.Pointer[[]string] // snapshot of endpoints' keys for lock-free round robin
}

func NewComponent(service Service, authn corebase.Authenticator) *Component {
	c := &Component{
		service:   service,
		authn:     authn,
		client:    &fasthttp.Client{},
		log:       log.New(log.SubsystemHTTP),
		endpoints: make(map[string]string),
	}
	empty := make([]string, 0)
	c.ids.Store(&empty)
	return c
}

// UpdateEndpoints replaces the live endpoint set; in-flight requests against
// a removed endpoint are unaffected since fasthttp dials per-request.
func (c *Component) UpdateEndpoints(endpoints map[string]string) {
	c.mu.Lock()
	c.endpoints = endpoints
	ids := make([]string, 0, len(endpoints))
	for id := range endpoints {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	c.ids.Store(&ids)
}

func (c *Component) pickEndpoint(hint string) (id, baseURL string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if hint != "" {
		if url, ok := c.endpoints[hint]; ok {
			return hint, url, true
		}
	}
	ids := *c.ids.Load()
	if len(ids) == 0 {
		return "", "", false
	}
	idx := atomic.AddUint64(&c.rrCounter, 1)
	id = ids[idx%uint64(len(ids))]
	return id, c.endpoints[id], true
}

// Orchestrate picks an endpoint, attaches auth (basic credentials, an OBO
// header for impersonation, or a client certificate handled upstream by the
// transport), and executes the request.
func (c *Component) Orchestrate(ctx context.Context, p ReqParams) (*Response, error) {
	endpointID, baseURL, ok := c.pickEndpoint(p.Endpoint)
	if !ok {
		return nil, corebase.New(corebase.KindNoServerAssigned, "no endpoints available for "+string(c.service), nil)
	}

	if p.ClientContextID == "" {
		if id, err := shortid.Generate(); err == nil {
			p.ClientContextID = id
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(baseURL + p.Path)
	req.Header.SetMethod(p.Method)
	if len(p.Body) > 0 {
		req.SetBody(p.Body)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("X-Client-Context-ID", p.ClientContextID)

	if err := c.applyAuth(ctx, endpointID, p, req); err != nil {
		return nil, err
	}

	deadline, hasDeadline := ctx.Deadline()
	var err error
	if hasDeadline {
		err = c.client.DoDeadline(req, resp, deadline)
	} else {
		err = c.client.Do(req, resp)
	}
	if err != nil {
		e := corebase.New(corebase.KindIo, "http request failed", err)
		e.Endpoint = baseURL
		return nil, e
	}

	body := append([]byte(nil), resp.Body()...)
	return &Response{
		StatusCode: resp.StatusCode(),
		Body:       body,
		Endpoint:   endpointID,
	}, nil
}

// applyAuth attaches credentials to req. An OBO identity on an external
// domain goes out as a cb-on-behalf-of header; a local-domain OBO identity
// and the no-OBO case both go out as basic auth, the former substituting
// the impersonated username for the authenticator's own.
func (c *Component) applyAuth(ctx context.Context, endpointID string, p ReqParams, req *fasthttp.Request) error {
	if p.OnBehalfOf != nil && !p.OnBehalfOf.IsLocal() {
		req.Header.Set("cb-on-behalf-of", p.OnBehalfOf.Username+":"+p.OnBehalfOf.Domain)
		return nil
	}

	if c.authn == nil {
		return nil
	}
	creds, err := c.authn.Credentials(ctx, string(c.service), endpointID)
	if err != nil {
		return err
	}
	user := creds.Username
	if p.OnBehalfOf != nil {
		user = p.OnBehalfOf.Username
	}
	req.Header.Set("Authorization", basicAuthHeader(user, creds.Password))
	return nil
}

func basicAuthHeader(user, pass string) string {
	var buf bytes.Buffer
	buf.WriteString(user)
	buf.WriteByte(':')
	buf.WriteString(pass)
	return "Basic " + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// WaitIdle blocks until d elapses; used by tests that need fasthttp's
// connection pool to settle between assertions.
func WaitIdle(d time.Duration) { time.Sleep(d) }
