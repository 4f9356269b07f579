package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"time"
)

const (
	// HeaderTimestamp carries the unix seconds the request was signed at.
	HeaderTimestamp = "X-Keeper-Timestamp"
	// HeaderSignature carries base64(HMAC-SHA256(secret, ts+method+path+body)).
	HeaderSignature = "X-Keeper-Signature"
)

var (
	ErrSignatureMissing = errors.New("crypto: signature headers missing")
	ErrSignatureStale   = errors.New("crypto: signature timestamp outside tolerance")
	ErrSignatureInvalid = errors.New("crypto: signature mismatch")
)

// RequestAuth signs and verifies job requests with a shared secret.
type RequestAuth struct {
	Secret    string
	Tolerance time.Duration
}

// Headers returns the signature headers for a request sent at unixTS.
func (a RequestAuth) Headers(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: hmacSHA256Base64([]byte(a.Secret), ts+method+path+body),
	}
}

// Verify checks a signature produced by Headers against now.
func (a RequestAuth) Verify(method, path, body, ts, sig string, now time.Time) error {
	if ts == "" || sig == "" {
		return ErrSignatureMissing
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrSignatureMissing
	}
	if a.Tolerance > 0 {
		skew := now.Sub(time.Unix(unix, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > a.Tolerance {
			return ErrSignatureStale
		}
	}

	want := hmacSHA256Base64([]byte(a.Secret), ts+method+path+body)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrSignatureInvalid
	}
	return nil
}

func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
