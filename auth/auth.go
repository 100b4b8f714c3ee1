// Package auth provides corebase.Authenticator implementations for three
// credential shapes: a static username/password, a client certificate, and
// a JWT bearer token.
package auth

import (
	"context"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

// StaticAuthenticator returns the same username/password for every
// service/endpoint pair; the common case for a single-user application.
type StaticAuthenticator struct {
	Username string
	Password string
}

func (a StaticAuthenticator) Credentials(context.Context, string, string) (corebase.UserPassPair, error) {
	return corebase.UserPassPair{Username: a.Username, Password: a.Password}, nil
}

func (StaticAuthenticator) Certificate(context.Context, string) (*corebase.ClientCertificate, error) {
	return nil, nil
}

func (StaticAuthenticator) SupportsTLS() bool { return false }

// CertAuthenticator authenticates via mutual TLS; Credentials is never
// called by a caller that respects SupportsTLS/the presence of a
// certificate, but returns a zero value rather than an error to stay a
// no-surprise Authenticator if misused.
type CertAuthenticator struct {
	Cert corebase.ClientCertificate
}

func (a CertAuthenticator) Credentials(context.Context, string, string) (corebase.UserPassPair, error) {
	return corebase.UserPassPair{}, nil
}

func (a CertAuthenticator) Certificate(context.Context, string) (*corebase.ClientCertificate, error) {
	cert := a.Cert
	return &cert, nil
}

func (CertAuthenticator) SupportsTLS() bool { return true }
