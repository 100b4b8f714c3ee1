package memdx

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"strings"

	"github.com/couchbaselabs/gocbcorex/corebase"
	jsoniter "github.com/json-iterator/go"
)

// BootstrapOptions carries what its fixed bootstrap sequence needs.
type BootstrapOptions struct {
	RequestedFeatures []uint16
	Username          string
	Password          string
	BucketName        string // empty: skip SELECT_BUCKET
	ClientName        string
}

// BootstrapResult is everything downstream components need out of a
// successful bootstrap.
type BootstrapResult struct {
	EnabledFeatures []uint16
	ErrorMap        map[string]interface{}
	ClusterConfig   []byte // raw terse-config JSON for the caller to parse
}

// HelloFeature codes negotiated in HELLO, used by the rest of the core to
// check e.g. whether UnorderedExec or Collections were granted.
const (
	HelloFeatureCollections  uint16 = 0x12
	HelloFeatureUnorderedExec uint16 = 0x0f
	HelloFeatureAltRequest   uint16 = 0x10
	HelloFeatureSyncReplication uint16 = 0x13
	HelloFeatureDurations    uint16 = 0x0c
)

// Bootstrap runs HELLO -> GET_ERROR_MAP -> SASL_AUTH (auto mechanism) ->
// SELECT_BUCKET -> GET_CLUSTER_CONFIG exactly once. Any failure closes the
// socket and returns a classified error.
func (c *Client) Bootstrap(ctx context.Context, opts BootstrapOptions) (BootstrapResult, error) {
	res, err := c.bootstrap(ctx, opts)
	if err != nil {
		c.Close()
		return BootstrapResult{}, err
	}
	return res, nil
}

func (c *Client) bootstrap(ctx context.Context, opts BootstrapOptions) (BootstrapResult, error) {
	enabled, err := c.doHello(ctx, opts)
	if err != nil {
		return BootstrapResult{}, err
	}
	for _, f := range enabled {
		c.helloFeatures[f] = true
	}
	c.collectionsEnabled = c.helloFeatures[HelloFeatureCollections]

	errMap, err := c.doGetErrorMap(ctx)
	if err != nil {
		return BootstrapResult{}, err
	}
	c.errorMap = errMap

	if opts.Username != "" {
		if err := c.doSASLAuto(ctx, opts.Username, opts.Password); err != nil {
			return BootstrapResult{}, err
		}
	}

	if opts.BucketName != "" {
		if err := c.doSelectBucket(ctx, opts.BucketName); err != nil {
			return BootstrapResult{}, err
		}
	}

	cfg, err := c.doGetClusterConfig(ctx)
	if err != nil {
		return BootstrapResult{}, err
	}

	return BootstrapResult{EnabledFeatures: enabled, ErrorMap: errMap, ClusterConfig: cfg}, nil
}

func (c *Client) doHello(ctx context.Context, opts BootstrapOptions) ([]uint16, error) {
	extras := []byte{}
	key := []byte(opts.ClientName)
	value := make([]byte, 0, len(opts.RequestedFeatures)*2)
	for _, f := range opts.RequestedFeatures {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, f)
		value = append(value, b...)
	}
	op, err := c.Dispatch(ctx, Packet{Magic: MagicReq, OpCode: OpCodeHello, Extras: extras, Key: key, Value: value}, DefaultClassifier)
	if err != nil {
		return nil, err
	}
	defer op.Close()
	resp, err := op.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusSuccess {
		return nil, responseError(resp, "HELLO failed")
	}
	var features []uint16
	for i := 0; i+1 < len(resp.Value); i += 2 {
		features = append(features, binary.BigEndian.Uint16(resp.Value[i:i+2]))
	}
	return features, nil
}

func (c *Client) doGetErrorMap(ctx context.Context) (map[string]interface{}, error) {
	value := []byte{0x00, 0x02} // requested error map version, big endian u16
	op, err := c.Dispatch(ctx, Packet{Magic: MagicReq, OpCode: OpCodeGetErrorMap, Value: value}, DefaultClassifier)
	if err != nil {
		return nil, err
	}
	defer op.Close()
	resp, err := op.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusSuccess {
		return nil, responseError(resp, "GET_ERROR_MAP failed")
	}
	var m map[string]interface{}
	if len(resp.Value) > 0 {
		if err := jsoniter.Unmarshal(resp.Value, &m); err != nil {
			return nil, corebase.New(corebase.KindProtocolEncoding, "error map decode failed", err)
		}
	}
	return m, nil
}

func (c *Client) doSASLAuto(ctx context.Context, username, password string) error {
	mechs, err := c.doListMechs(ctx)
	if err != nil {
		return err
	}
	available := make(map[SASLMechanism]bool, len(mechs))
	for _, m := range mechs {
		available[SASLMechanism(m)] = true
	}

	var lastErr error
	for _, mech := range PreferredMechanismOrder {
		if !available[mech] {
			continue
		}
		err := c.doSASLMechanism(ctx, mech, username, password)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return corebase.New(corebase.KindNoSupportedMechanism, "no supported SASL mechanism advertised", nil)
	}
	return lastErr
}

func (c *Client) doListMechs(ctx context.Context) ([]string, error) {
	op, err := c.Dispatch(ctx, Packet{Magic: MagicReq, OpCode: OpCodeSASLListMechs}, DefaultClassifier)
	if err != nil {
		return nil, err
	}
	defer op.Close()
	resp, err := op.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusSuccess {
		return nil, responseError(resp, "SASL_LIST_MECHS failed")
	}
	return strings.Fields(string(resp.Value)), nil
}

func (c *Client) doSASLMechanism(ctx context.Context, mech SASLMechanism, username, password string) error {
	if mech == MechanismPlain {
		op, err := c.Dispatch(ctx, Packet{Magic: MagicReq, OpCode: OpCodeSASLAuth, Key: []byte(mech), Value: PlainAuthPayload(username, password)}, DefaultClassifier)
		if err != nil {
			return err
		}
		defer op.Close()
		resp, err := op.Recv(ctx)
		if err != nil {
			return err
		}
		if resp.Status != StatusSuccess {
			return responseError(resp, "PLAIN auth failed")
		}
		return nil
	}

	nonce := make([]byte, 18)
	_, _ = rand.Read(nonce)
	clientNonce := base64.StdEncoding.EncodeToString(nonce)
	scram := newScramClient(mech, username, password, clientNonce)

	op, err := c.Dispatch(ctx, Packet{Magic: MagicReq, OpCode: OpCodeSASLAuth, Key: []byte(mech), Value: scram.FirstMessage()}, DefaultClassifier)
	if err != nil {
		return err
	}
	resp, err := op.Recv(ctx)
	op.Close()
	if err != nil {
		return err
	}
	if resp.Status != StatusAuthContinue {
		return responseError(resp, "SCRAM first step failed")
	}

	finalMsg, err := scram.FinalMessage(resp.Value)
	if err != nil {
		return err
	}

	op2, err := c.Dispatch(ctx, Packet{Magic: MagicReq, OpCode: OpCodeSASLStep, Key: []byte(mech), Value: finalMsg}, DefaultClassifier)
	if err != nil {
		return err
	}
	defer op2.Close()
	resp2, err := op2.Recv(ctx)
	if err != nil {
		return err
	}
	if resp2.Status != StatusSuccess {
		return responseError(resp2, "SCRAM final step failed")
	}
	return scram.VerifyServerFinal(resp2.Value)
}

func (c *Client) doSelectBucket(ctx context.Context, bucket string) error {
	op, err := c.Dispatch(ctx, Packet{Magic: MagicReq, OpCode: OpCodeSelectBucket, Key: []byte(bucket)}, DefaultClassifier)
	if err != nil {
		return err
	}
	defer op.Close()
	resp, err := op.Recv(ctx)
	if err != nil {
		return err
	}
	if resp.Status != StatusSuccess {
		return responseError(resp, "SELECT_BUCKET failed")
	}
	return nil
}

func (c *Client) doGetClusterConfig(ctx context.Context) ([]byte, error) {
	op, err := c.Dispatch(ctx, Packet{Magic: MagicReq, OpCode: OpCodeGetClusterConfig}, DefaultClassifier)
	if err != nil {
		return nil, err
	}
	defer op.Close()
	resp, err := op.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusSuccess {
		return nil, responseError(resp, "GET_CLUSTER_CONFIG failed")
	}
	return resp.Value, nil
}

// responseError builds a response-side error whose Kind is derived from the
// packet's status, annotated with the opaque of the packet that produced it.
func responseError(resp Packet, msg string) error {
	e := corebase.New(StatusToKind(resp.Status), msg, nil)
	e.Opaque = resp.Opaque
	return e
}
