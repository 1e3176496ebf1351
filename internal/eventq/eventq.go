// Package eventq has non-blocking channel helpers for coalesced wakeups.
package eventq

// Offer sends value if ch has room and reports whether it did.
func Offer[T any](ch chan<- T, value T) bool {
	select {
	case ch <- value:
		return true
	default:
		return false
	}
}

// NewWake returns a wake channel. Any number of Wake calls between two
// receives collapse into one pending wakeup.
func NewWake() chan struct{} {
	return make(chan struct{}, 1)
}

// Wake marks ch as pending without blocking.
func Wake(ch chan<- struct{}) {
	Offer(ch, struct{}{})
}
