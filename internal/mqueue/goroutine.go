package mqueue

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID returns a best-effort, process-unique identifier for the
// calling goroutine.
//
// Go deliberately exposes no public goroutine-id API, so §4.1's thread_of /
// queue_of / CurrentThreadMessageQueue mapping (originally keyed by OS
// thread id) is implemented by scraping the id out of runtime.Stack, the
// same trick a number of goroutine-affinity and logging libraries use in
// absence of real TLS. This is only ever called off the hot dispatch path —
// from BindCurrentThread, CurrentQueue, and the re-entrancy check inside
// WaitMessage — never from PostMessage or the scheduler pass itself.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Stack trace starts with "goroutine 123 [running]:".
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
