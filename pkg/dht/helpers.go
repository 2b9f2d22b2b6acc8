package dht

import "time"

// nowUnix returns the current wall-clock time in unix seconds, the same
// timebase StoredValue.Version and Expiration use.
func nowUnix() uint64 {
	return uint64(time.Now().Unix())
}
