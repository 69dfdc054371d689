// Package signature verifies that a redirect request was relayed by the
// trusted edge, using a pre-shared HMAC secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Trust headers set by the edge relay.
const (
	HeaderTimestamp = "x-ts"
	HeaderSignature = "x-sig"
)

// DefaultWindow is the maximum accepted clock skew of a signed request.
const DefaultWindow = 300 * time.Second

var (
	// ErrUnauthorized is the class of all verification failures.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMissingHeader is returned when only one of the trust headers is present.
	ErrMissingHeader = fmt.Errorf("%w: incomplete trust headers", ErrUnauthorized)
	// ErrMalformedTimestamp is returned when the timestamp is not an integer.
	ErrMalformedTimestamp = fmt.Errorf("%w: malformed timestamp", ErrUnauthorized)
	// ErrReplayWindowExceeded is returned when timestamp is outside replay window.
	ErrReplayWindowExceeded = fmt.Errorf("%w: timestamp outside replay window", ErrUnauthorized)
	// ErrInvalidSignature is returned when signature verification fails.
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrUnauthorized)
	// ErrDirectNotAllowed is returned for unsigned requests in signed-only mode.
	ErrDirectNotAllowed = fmt.Errorf("%w: signed request required", ErrUnauthorized)
)

// Kind distinguishes the two trust paths.
type Kind int

const (
	// Direct requests carry no trust headers.
	Direct Kind = iota
	// Signed requests carry both trust headers.
	Signed
)

// Trust is the trust path a request arrived on. TS and Sig are only
// meaningful when Kind is Signed.
type Trust struct {
	Kind Kind
	TS   string
	Sig  string
}

// IsSigned reports whether the request arrived through the edge relay.
func (t Trust) IsSigned() bool { return t.Kind == Signed }

// FromHeaders extracts the trust path from request headers.
// Exactly one header present is an error.
func FromHeaders(h http.Header) (Trust, error) {
	ts := strings.TrimSpace(h.Get(HeaderTimestamp))
	sig := strings.TrimSpace(h.Get(HeaderSignature))

	switch {
	case ts == "" && sig == "":
		return Trust{Kind: Direct}, nil
	case ts == "" || sig == "":
		return Trust{}, ErrMissingHeader
	default:
		return Trust{Kind: Signed, TS: ts, Sig: sig}, nil
	}
}

// Sign computes the hex HMAC-SHA256 of the canonical string "{ts}:{id}".
func Sign(secret string, ts int64, id string) string {
	return sign(secret, strconv.FormatInt(ts, 10), id)
}

func sign(secret, ts, id string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte{':'})
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier checks signed requests against a shared secret.
type Verifier struct {
	secret     string
	window     time.Duration
	signedOnly bool
	now        func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithWindow overrides the replay window.
func WithWindow(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.window = d
		}
	}
}

// SignedOnly rejects requests without trust headers.
func SignedOnly(enabled bool) Option {
	return func(v *Verifier) { v.signedOnly = enabled }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier for the given secret.
func NewVerifier(secret string, opts ...Option) *Verifier {
	v := &Verifier{
		secret: secret,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the trust path for identifier id (already URL-decoded).
// Direct requests pass unless the verifier is signed-only.
func (v *Verifier) Verify(trust Trust, id string) error {
	if !trust.IsSigned() {
		if v.signedOnly {
			return ErrDirectNotAllowed
		}
		return nil
	}

	// No secret configured means no signature can be valid.
	if v.secret == "" {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(trust.TS, 10, 64)
	if err != nil {
		return ErrMalformedTimestamp
	}

	if abs(v.now().Unix()-ts) > int64(v.window/time.Second) {
		return ErrReplayWindowExceeded
	}

	expected := sign(v.secret, trust.TS, id)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(trust.Sig))) {
		return ErrInvalidSignature
	}

	return nil
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
