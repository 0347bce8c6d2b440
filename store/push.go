package store

// OfferLatest delivers a full-replace push to a subscriber channel. When the
// buffer is full it evicts the oldest buffered push to make room: buffered
// pushes are superseded by the one being delivered, so the newest state must
// never be the one dropped. Returns false only if the channel is still full
// after the eviction, which means the subscriber raced a send in between.
func OfferLatest[T any](ch chan T, push T) bool {
	select {
	case ch <- push:
		return true
	default:
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- push:
		return true
	default:
		return false
	}
}
