package settlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nkiryanov/washpay/internal/apperrors"
)

const (
	SignatureHeader = "Settlement-Signature"

	DefaultTolerance = 5 * time.Minute
)

// Verify the signature header against the raw request body
// Header format: t=<unix seconds>,v1=<hex hmac-sha256 of "<t>.<body>">. Several v1 entries are allowed during secret rotation
func VerifySignature(secret []byte, header string, body []byte, now time.Time, tolerance time.Duration) error {
	if len(secret) == 0 || header == "" {
		return apperrors.ErrSignatureInvalid
	}

	var (
		timestamp  string
		signatures []string
	)

	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return fmt.Errorf("%w: malformed header", apperrors.ErrSignatureInvalid)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", apperrors.ErrSignatureInvalid)
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", apperrors.ErrSignatureInvalid)
	}

	expected := computeSignature(secret, timestamp, body)
	for _, s := range signatures {
		given, err := hex.DecodeString(s)
		if err != nil {
			continue
		}
		if hmac.Equal(given, expected) {
			return nil
		}
	}

	return fmt.Errorf("%w: no matching signature", apperrors.ErrSignatureInvalid)
}

// Build signature header for the body
func SignPayload(secret []byte, body []byte, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	return "t=" + timestamp + ",v1=" + hex.EncodeToString(computeSignature(secret, timestamp, body))
}

func computeSignature(secret []byte, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp)) // nolint:errcheck
	mac.Write([]byte("."))       // nolint:errcheck
	mac.Write(body)              // nolint:errcheck
	return mac.Sum(nil)
}
