package host

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoBotToken      = errors.New("bot token not configured")
	ErrMissingHash     = errors.New("init data has no hash")
	ErrBadSignature    = errors.New("init data signature mismatch")
	ErrInitDataExpired = errors.New("init data expired")
	ErrNoUser          = errors.New("init data has no user")
)

// ValidateInitData checks the signed query string the platform injects into
// the webview and returns the user it carries. maxAge of zero disables the
// freshness check.
func ValidateInitData(raw, botToken string, maxAge time.Duration, now time.Time) (Identity, error) {
	if botToken == "" {
		return Identity{}, ErrNoBotToken
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("parse init data: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return Identity{}, ErrMissingHash
	}
	want, err := hex.DecodeString(hash)
	if err != nil {
		return Identity{}, ErrBadSignature
	}
	if !hmac.Equal(signInitData(values, botToken), want) {
		return Identity{}, ErrBadSignature
	}

	if maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil {
			return Identity{}, fmt.Errorf("init data auth_date: %w", err)
		}
		if now.Sub(time.Unix(authDate, 0)) > maxAge {
			return Identity{}, ErrInitDataExpired
		}
	}

	rawUser := values.Get("user")
	if rawUser == "" {
		return Identity{}, ErrNoUser
	}
	var id Identity
	if err := json.Unmarshal([]byte(rawUser), &id); err != nil {
		return Identity{}, fmt.Errorf("init data user: %w", err)
	}
	if id.UserID == 0 {
		return Identity{}, ErrNoUser
	}
	return id, nil
}

// SignInitData returns values encoded with a valid hash. It is the inverse of
// ValidateInitData and is used by tests and the fake backend tooling.
func SignInitData(values url.Values, botToken string) string {
	values.Del("hash")
	values.Set("hash", hex.EncodeToString(signInitData(values, botToken)))
	return values.Encode()
}

func signInitData(values url.Values, botToken string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return mac.Sum(nil)
}
