package indexer

import (
	"context"
	"time"
)

// Status describes whether the persisted data of an index can be trusted.
type Status int32

const (
	StatusOK Status = iota
	StatusRequiresRebuild
	StatusRebuildInProgress
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRequiresRebuild:
		return "requires_rebuild"
	case StatusRebuildInProgress:
		return "rebuild_in_progress"
	default:
		return "unknown"
	}
}

// RebuildEvent asks the content producer to re-feed every input of an index.
type RebuildEvent struct {
	Index       string    `json:"index"`
	Version     int       `json:"version"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requestedAt"`
}

// RebuildNotifier publishes rebuild events.
type RebuildNotifier interface {
	NotifyRebuild(ctx context.Context, event RebuildEvent) error
}

// MarkerStore persists pending rebuild requests across restarts.
type MarkerStore interface {
	Mark(ctx context.Context, index, reason string) error
	Unmark(ctx context.Context, index string) error
	Marked(ctx context.Context) (map[string]string, error)
}
