// Package auth implements the shared-secret HMAC scheme both sides of the
// bridge sign with: HMAC-SHA256 over "key \n timestamp \n path \n raw body".
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"walletbridge/pkg/config"
	"walletbridge/pkg/errors"
)

// Header names shared by inbound verification and outbound signing.
const (
	HeaderKey       = "X-CB-Key"
	HeaderSignature = "X-CB-Signature"
	HeaderTimestamp = "X-CB-TS"
)

// Sign computes the hex signature for an outbound or expected request.
func Sign(key, secret, path string, body []byte, timestamp int64) string {
	payload := strings.Join([]string{
		key,
		strconv.FormatInt(timestamp, 10),
		path,
		string(body),
	}, "\n")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Keyring verifies inbound bridge requests against the configured API keys.
type Keyring struct {
	keys map[string]config.APIKey
	skew time.Duration
}

func NewKeyring(keys []config.APIKey, skew time.Duration) *Keyring {
	index := make(map[string]config.APIKey, len(keys))
	for _, k := range keys {
		index[k.Key] = k
	}
	return &Keyring{keys: index, skew: skew}
}

// Verify checks headers, timestamp freshness, and the signature. On success
// it returns the matched key for downstream authorization and logging.
func (r *Keyring) Verify(key, signature, timestamp, path string, body []byte, now time.Time) (*config.APIKey, error) {
	key = strings.TrimSpace(key)
	signature = strings.TrimSpace(signature)
	timestamp = strings.TrimSpace(timestamp)

	if key == "" || signature == "" || timestamp == "" {
		return nil, errors.ErrMissingAuthHeader
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, errors.ErrInvalidTimestamp
	}

	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > r.skew {
		return nil, errors.ErrTimestampSkew
	}

	matched, ok := r.keys[key]
	if !ok {
		return nil, errors.ErrUnknownAPIKey
	}

	expected := Sign(key, matched.Secret, path, body, ts)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, errors.ErrSignatureMismatch
	}

	return &matched, nil
}
