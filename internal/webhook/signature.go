package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformedSignature = errors.New("malformed webhook signature")
	ErrSignatureMismatch  = errors.New("webhook signature mismatch")
)

// Sign returns the signature header value for body sent at ts:
// t=<unix millis>,v1=<hex HMAC-SHA256 of "<millis>.<body>">.
func Sign(secret string, body []byte, ts time.Time) string {
	ms := ts.UnixMilli()
	return "t=" + strconv.FormatInt(ms, 10) + ",v1=" + hex.EncodeToString(mac(secret, ms, body))
}

// Verify recomputes the signature for body and compares it in constant time.
func Verify(secret string, body []byte, header string) error {
	ms, sig, err := parseHeader(header)
	if err != nil {
		return err
	}
	if !hmac.Equal(sig, mac(secret, ms, body)) {
		return ErrSignatureMismatch
	}
	return nil
}

func mac(secret string, ms int64, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ms, 10)))
	h.Write([]byte{'.'})
	h.Write(body)
	return h.Sum(nil)
}

func parseHeader(header string) (int64, []byte, error) {
	var (
		ms     int64
		sig    []byte
		hasTS  bool
		hasSig bool
	)
	for part := range strings.SplitSeq(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, nil, ErrMalformedSignature
		}
		switch key {
		case "t":
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, ErrMalformedSignature
			}
			ms, hasTS = v, true
		case "v1":
			v, err := hex.DecodeString(value)
			if err != nil {
				return 0, nil, ErrMalformedSignature
			}
			sig, hasSig = v, true
		}
	}
	if !hasTS || !hasSig {
		return 0, nil, ErrMalformedSignature
	}
	return ms, sig, nil
}
