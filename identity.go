package xevent

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// DeriveID returns the id assigned to a listener registered without WithID.
// Registering the same listener body twice yields the same id.
func DeriveID(source string) string {
	return "listener:" + strconv.FormatUint(xxhash.Sum64String(source), 16)
}
