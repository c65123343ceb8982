// Package attr holds the slog attribute helpers used across the bot so log
// keys stay consistent between packages.
package attr

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

func String(key, value string) slog.Attr             { return slog.String(key, value) }
func Int(key string, value int) slog.Attr            { return slog.Int(key, value) }
func Int64(key string, value int64) slog.Attr        { return slog.Int64(key, value) }
func Bool(key string, value bool) slog.Attr          { return slog.Bool(key, value) }
func Duration(key string, d time.Duration) slog.Attr { return slog.Duration(key, d) }
func Time(key string, t time.Time) slog.Attr         { return slog.Time(key, t) }

// Error renders err under the "error" key.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// RunID tags a record with the digest run it belongs to.
func RunID(id uuid.UUID) slog.Attr {
	return slog.String("run_id", id.String())
}

// Source tags a record with the judge being synced.
func Source[T ~string](source T) slog.Attr {
	return slog.String("source", string(source))
}

// Handle tags a record with a member's handle on a judge.
func Handle(handle string) slog.Attr {
	return slog.String("handle", handle)
}

// Member tags a record with the roster member's display name.
func Member(name string) slog.Attr {
	return slog.String("member", name)
}
