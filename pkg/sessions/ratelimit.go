package sessions

import "time"

// rateWindow implements the per-session sliding admission window. The
// window resets whenever it has been open for at least the full span, so
// the first message from a fresh session always passes.
type rateWindow struct {
	start time.Time
	count int
}

// admit counts one inbound message and reports whether it stays within the
// limit. Exactly limit messages within a window pass; the message after
// that does not.
func (w *rateWindow) admit(now time.Time, limit int, window time.Duration) bool {
	if now.Sub(w.start) >= window {
		w.start = now
		w.count = 0
	}
	w.count++
	return w.count <= limit
}
