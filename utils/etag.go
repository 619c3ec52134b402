package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"time"
)

// GenerateETag derives a weak validator from an id and its last change time.
func GenerateETag(id string, updatedAt time.Time) string {
	h := sha1.New()
	h.Write([]byte(id))
	h.Write([]byte(strconv.FormatInt(updatedAt.UnixNano(), 10)))
	return `W/"` + hex.EncodeToString(h.Sum(nil)) + `"`
}
