package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// authParams never participate in key construction so that rotating
// credentials does not invalidate cached responses.
var authParams = map[string]bool{
	"crtfc_key": true,
	"apiKey":    true,
	"appkey":    true,
	"appsecret": true,
	"token":     true,
	"tr_id":     true,
}

// BuildKey returns the canonical cache key
// "<provider>:<endpoint>:<fingerprint>". Parameter order does not affect
// the fingerprint; auth-bearing parameters are excluded.
func BuildKey(provider, endpoint string, params map[string]string) string {
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if authParams[k] {
			continue
		}
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	sum := sha256.Sum256([]byte(strings.Join(pairs, "&")))
	return provider + ":" + endpoint + ":" + hex.EncodeToString(sum[:16])
}

// KeyPrefix returns the invalidation prefix for all keys of an endpoint.
func KeyPrefix(provider, endpoint string) string {
	return provider + ":" + endpoint + ":"
}
