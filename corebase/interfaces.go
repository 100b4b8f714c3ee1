package corebase

import "context"

// UserPassPair is returned by an Authenticator for basic-auth style
// credentials.
type UserPassPair struct {
	Username string
	Password string
}

// ClientCertificate is returned by an Authenticator that authenticates via
// mutual TLS instead of a username/password.
type ClientCertificate struct {
	CertPEM []byte
	KeyPEM  []byte
}

// OnBehalfOf carries impersonation details for a single request. Domain is
// "local" for Couchbase-managed users or an external domain name (e.g.
// "external") for federated identities.
type OnBehalfOf struct {
	Username string
	Domain   string
}

// IsLocal reports whether this OBO identity authenticates via basic auth
// (local domain) rather than the cb-on-behalf-of header (external domain).
func (o OnBehalfOf) IsLocal() bool { return o.Domain == "" || o.Domain == "local" }

// Authenticator is the external collaborator the core only consumes: it
// yields credentials for a given service/endpoint pair, or a client
// certificate. The core never persists or logs the values it returns.
type Authenticator interface {
	// Credentials returns (user, pass) for basic auth. svc is one of
	// "kv"/"mgmt"/"query"/"search"/"analytics".
	Credentials(ctx context.Context, svc, endpoint string) (UserPassPair, error)
	// Certificate returns a client certificate for TLS client-auth, or
	// (nil, nil) if this authenticator doesn't support it.
	Certificate(ctx context.Context, endpoint string) (*ClientCertificate, error)
	// SupportsTLS reports whether this authenticator only works over TLS
	// (e.g. a bearer-token authenticator should refuse plaintext).
	SupportsTLS() bool
}

// Compressor is the external collaborator for document-value compression;
// the core never implements codec logic itself.
type Compressor interface {
	Compress(in []byte) ([]byte, error)
	Decompress(in []byte) ([]byte, error)
	// Name identifies the codec for the datatype byte / content-encoding
	// negotiation (e.g. "snappy", "lz4").
	Name() string
}

// OrphanResponse is what memdx.Client reports for a packet whose opaque has
// no registered pending op.
type OrphanResponse struct {
	Endpoint string
	Opcode   uint8
	Opaque   uint32
	Status   uint16
}

// OrphanReporter is the external collaborator that records orphaned
// responses; the core never acts on them beyond reporting.
type OrphanReporter interface {
	ReportOrphan(OrphanResponse)
}

// NoopOrphanReporter drops every orphan; the default when the caller
// supplies none.
type NoopOrphanReporter struct{}

func (NoopOrphanReporter) ReportOrphan(OrphanResponse) {}

// Meter is the external collaborator for metrics emission.
type Meter interface {
	RecordOpDuration(service, opName string, durationNanos int64, err error)
	RecordRetry(service, opName string)
}

// NoopMeter drops every measurement.
type NoopMeter struct{}

func (NoopMeter) RecordOpDuration(string, string, int64, error) {}
func (NoopMeter) RecordRetry(string, string)                    {}

// SpanScope is one span the agent opens around an operation; End closes it.
type SpanScope interface {
	End(err error)
	AddTag(key string, value interface{})
}

// Tracer is the external collaborator for span emission.
type Tracer interface {
	StartSpan(ctx context.Context, service, opName string) (context.Context, SpanScope)
}

// NoopTracer emits no spans.
type NoopTracer struct{}

type noopSpan struct{}

func (noopSpan) End(error)                    {}
func (noopSpan) AddTag(string, interface{})   {}

func (NoopTracer) StartSpan(ctx context.Context, _, _ string) (context.Context, SpanScope) {
	return ctx, noopSpan{}
}
