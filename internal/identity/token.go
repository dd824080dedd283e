package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

const timestampLayout = "20060102150405.000"

// Timestamp renders t as YYYYMMDDHHmmssSSS in t's location.
func Timestamp(t time.Time) string {
	return strings.Replace(t.Format(timestampLayout), ".", "", 1)
}

// Token derives the per-request token expected by the identity service:
// uppercase hex SHA-1 of the timestamp followed by the secret with dashes removed.
func Token(timestamp, secret string) string {
	cleaned := strings.ReplaceAll(secret, "-", "")
	sum := sha1.Sum([]byte(timestamp + cleaned))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
