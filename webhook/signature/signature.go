package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// HeaderName carries the signature on every outbound request
	HeaderName = "X-Webhook-Signature"

	// SecretPrefix marks secrets generated by this package
	SecretPrefix = "whsec_"

	// SignatureVersion is the scheme identifier inside the header
	SignatureVersion = "v1"

	// MinSecretBytes is the minimum recommended secret size (192 bits)
	MinSecretBytes = 24

	// MaxSecretBytes is the maximum recommended secret size (512 bits)
	MaxSecretBytes = 64

	// DefaultTolerance is how far a timestamp may drift before it is rejected
	DefaultTolerance = 5 * time.Minute
)

var (
	ErrInvalidHeader     = errors.New("invalid signature header")
	ErrNoSignatures      = errors.New("no v1 signatures in header")
	ErrTimestampExpired  = errors.New("timestamp outside tolerance window")
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// GenerateSecret creates a new cryptographically secure signing secret
// between MinSecretBytes and MaxSecretBytes in size.
func GenerateSecret(size int) (string, error) {
	if size < MinSecretBytes || size > MaxSecretBytes {
		return "", fmt.Errorf("secret size must be between %d and %d bytes", MinSecretBytes, MaxSecretBytes)
	}

	bytes := make([]byte, size)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return SecretPrefix + base64.StdEncoding.EncodeToString(bytes), nil
}

/* Signature is the parsed form of the header
 * t=<unix seconds>,v1=<hex>[,v1=<hex>...]
 * Several v1 entries may be present while a secret is being rotated
 */
type Signature struct {
	Timestamp time.Time
	V1        []string
}

// String returns the header value
func (s Signature) String() string {
	parts := make([]string, 0, len(s.V1)+1)
	parts = append(parts, "t="+strconv.FormatInt(s.Timestamp.Unix(), 10))
	for _, v := range s.V1 {
		parts = append(parts, SignatureVersion+"="+v)
	}
	return strings.Join(parts, ",")
}

// Compute returns the hex HMAC-SHA256 of "<unix timestamp>.<body>"
func Compute(secret string, timestamp time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign signs body with every secret, the first being the current one
func Sign(timestamp time.Time, body []byte, secrets ...string) (Signature, error) {
	if len(secrets) == 0 {
		return Signature{}, fmt.Errorf("at least one secret is required")
	}

	sig := Signature{Timestamp: time.Unix(timestamp.Unix(), 0)}
	for _, secret := range secrets {
		if secret == "" {
			return Signature{}, fmt.Errorf("secret cannot be empty")
		}
		sig.V1 = append(sig.V1, Compute(secret, timestamp, body))
	}
	return sig, nil
}

// ParseHeader parses a signature header value
func ParseHeader(header string) (Signature, error) {
	if strings.TrimSpace(header) == "" {
		return Signature{}, fmt.Errorf("%w: header is empty", ErrInvalidHeader)
	}

	var sig Signature
	var hasTimestamp bool
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Signature{}, fmt.Errorf("%w: malformed element %q", ErrInvalidHeader, part)
		}

		switch key {
		case "t":
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Signature{}, fmt.Errorf("%w: parsing timestamp: %v", ErrInvalidHeader, err)
			}
			sig.Timestamp = time.Unix(unix, 0)
			hasTimestamp = true
		case SignatureVersion:
			sig.V1 = append(sig.V1, value)
		default:
			// unknown schemes are ignored so new versions can be added
		}
	}

	if !hasTimestamp {
		return Signature{}, fmt.Errorf("%w: missing timestamp", ErrInvalidHeader)
	}
	if len(sig.V1) == 0 {
		return Signature{}, ErrNoSignatures
	}
	return sig, nil
}

// Verify checks header against body for any of secrets. The timestamp must
// be within tolerance of now in either direction; a tolerance of zero uses
// DefaultTolerance. Comparison is constant-time.
func Verify(header string, body []byte, tolerance time.Duration, now time.Time, secrets ...string) error {
	if len(secrets) == 0 {
		return fmt.Errorf("at least one secret is required")
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	sig, err := ParseHeader(header)
	if err != nil {
		return err
	}

	drift := now.Sub(sig.Timestamp)
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		return fmt.Errorf("%w: %s", ErrTimestampExpired, drift)
	}

	for _, secret := range secrets {
		expected, _ := hex.DecodeString(Compute(secret, sig.Timestamp, body))
		for _, candidate := range sig.V1 {
			got, err := hex.DecodeString(candidate)
			if err != nil {
				continue
			}
			if subtle.ConstantTimeCompare(expected, got) == 1 {
				return nil
			}
		}
	}

	return ErrSignatureMismatch
}
