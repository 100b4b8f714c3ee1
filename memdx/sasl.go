package memdx

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/couchbaselabs/gocbcorex/corebase"
	"golang.org/x/crypto/pbkdf2"
)

// SASLMechanism is one of the mechanisms bootstrap tries in order.
type SASLMechanism string

const (
	MechanismScramSHA512 SASLMechanism = "SCRAM-SHA512"
	MechanismScramSHA256 SASLMechanism = "SCRAM-SHA256"
	MechanismScramSHA1   SASLMechanism = "SCRAM-SHA1"
	MechanismPlain       SASLMechanism = "PLAIN"
)

// PreferredMechanismOrder is the order bootstrap tries the server's
// advertised mechanisms in. It moves on to the next advertised mechanism
// after any failure of the previous one, not only when the server reports
// the mechanism as unsupported.
var PreferredMechanismOrder = []SASLMechanism{
	MechanismScramSHA512, MechanismScramSHA256, MechanismScramSHA1, MechanismPlain,
}

func hashForMechanism(m SASLMechanism) func() hash.Hash {
	switch m {
	case MechanismScramSHA512:
		return sha512.New
	case MechanismScramSHA256:
		return sha256.New
	case MechanismScramSHA1:
		return sha1.New
	default:
		return nil
	}
}

// scramClient drives one client-side SCRAM conversation, computing the
// client proof with golang.org/x/crypto/pbkdf2 + stdlib HMAC the way a real
// SASL library would.
type scramClient struct {
	newHash      func() hash.Hash
	username     string
	password     string
	clientNonce  string
	clientFirstBare string
	serverSig    []byte
}

func newScramClient(mech SASLMechanism, username, password, clientNonce string) *scramClient {
	return &scramClient{
		newHash:     hashForMechanism(mech),
		username:    username,
		password:    password,
		clientNonce: clientNonce,
	}
}

// FirstMessage builds the SASL_AUTH payload: "n,,n=<user>,r=<nonce>".
func (s *scramClient) FirstMessage() []byte {
	s.clientFirstBare = fmt.Sprintf("n=%s,r=%s", saslEscape(s.username), s.clientNonce)
	return []byte("n,," + s.clientFirstBare)
}

// FinalMessage parses the server-first-message ("r=...,s=...,i=...") from
// SASL_AUTH's response and returns the SASL_STEP payload.
func (s *scramClient) FinalMessage(serverFirst []byte) ([]byte, error) {
	fields := parseSCRAMFields(string(serverFirst))
	serverNonce, ok := fields["r"]
	if !ok || !strings.HasPrefix(serverNonce, s.clientNonce) {
		return nil, corebase.New(corebase.KindAuthenticationFailure, "scram: bad server nonce", nil)
	}
	saltB64, ok := fields["s"]
	if !ok {
		return nil, corebase.New(corebase.KindAuthenticationFailure, "scram: missing salt", nil)
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, corebase.New(corebase.KindAuthenticationFailure, "scram: bad salt encoding", err)
	}
	iterStr, ok := fields["i"]
	if !ok {
		return nil, corebase.New(corebase.KindAuthenticationFailure, "scram: missing iteration count", nil)
	}
	iterCount, err := strconv.Atoi(iterStr)
	if err != nil || iterCount <= 0 {
		return nil, corebase.New(corebase.KindAuthenticationFailure, "scram: bad iteration count", err)
	}

	withoutProof := fmt.Sprintf("c=biws,r=%s", serverNonce)
	authMessage := s.clientFirstBare + "," + string(serverFirst) + "," + withoutProof

	saltedPassword := pbkdf2.Key([]byte(s.password), salt, iterCount, s.newHash().Size(), s.newHash)
	clientKey := hmacSum(s.newHash, saltedPassword, []byte("Client Key"))
	storedKey := hashSum(s.newHash, clientKey)
	clientSignature := hmacSum(s.newHash, storedKey, []byte(authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	serverKey := hmacSum(s.newHash, saltedPassword, []byte("Server Key"))
	s.serverSig = hmacSum(s.newHash, serverKey, []byte(authMessage))

	final := withoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)
	return []byte(final), nil
}

// VerifyServerFinal checks the "v=..." server signature returned by
// SASL_STEP's success response.
func (s *scramClient) VerifyServerFinal(serverFinal []byte) error {
	fields := parseSCRAMFields(string(serverFinal))
	v, ok := fields["v"]
	if !ok {
		return corebase.New(corebase.KindAuthenticationFailure, "scram: missing server signature", nil)
	}
	got, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return corebase.New(corebase.KindAuthenticationFailure, "scram: bad server signature encoding", err)
	}
	if subtle.ConstantTimeCompare(got, s.serverSig) != 1 {
		return corebase.New(corebase.KindAuthenticationFailure, "scram: server signature mismatch", nil)
	}
	return nil
}

func parseSCRAMFields(s string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			out[kv[0]] = kv[1]
		}
	}
	return out
}

func saslEscape(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	s = strings.ReplaceAll(s, ",", "=2C")
	return s
}

func hmacSum(newHash func() hash.Hash, key, msg []byte) []byte {
	mac := hmac.New(newHash, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

func hashSum(newHash func() hash.Hash, b []byte) []byte {
	h := newHash()
	h.Write(b)
	return h.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// PlainAuthPayload builds the PLAIN mechanism's "\0user\0pass" payload, the
// final fallback of its mechanism order.
func PlainAuthPayload(username, password string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0)
	buf.WriteString(username)
	buf.WriteByte(0)
	buf.WriteString(password)
	return buf.Bytes()
}
