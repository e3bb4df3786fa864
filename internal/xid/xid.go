// Package xid generates prefixed, time-ordered identifiers for records that
// have no serial id, such as audit log entries.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// New returns "<prefix>-<unix-nanos>-<12 hex chars>". Ids from the same
// process sort roughly by creation time.
func New(prefix string) string {
	id := prefix + "-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// Timestamp alone still yields a usable, near-unique id.
		return id
	}
	return id + "-" + hex.EncodeToString(buf)
}
