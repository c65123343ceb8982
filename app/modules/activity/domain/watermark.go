package activitydomain

import (
	"strconv"
	"strings"
)

// Watermark is the last-seen submission or run id for one member on one
// source. It is stored as a string; empty means the pair was never synced.
type Watermark string

// WatermarkFromID formats a submission id as a watermark.
func WatermarkFromID(id int64) Watermark {
	return Watermark(strconv.FormatInt(id, 10))
}

// ID parses the watermark. It reports false for empty or non-numeric values.
func (w Watermark) ID() (int64, bool) {
	s := strings.TrimSpace(string(w))
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// IsBootstrap reports whether no usable baseline has been stored yet.
func (w Watermark) IsBootstrap() bool {
	_, ok := w.ID()
	return !ok
}

// Advance returns the larger of w and newest. A bootstrap watermark always
// advances to newest.
func (w Watermark) Advance(newest int64) Watermark {
	if id, ok := w.ID(); ok && id >= newest {
		return w
	}
	return WatermarkFromID(newest)
}
