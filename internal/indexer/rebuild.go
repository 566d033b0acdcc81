package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
)

// Status returns the rebuild status of the named index.
func (r *Registry) Status(name string) (Status, error) {
	e, err := r.entry(name)
	if err != nil {
		return StatusOK, err
	}
	return Status(e.status.Load()), nil
}

// RequestRebuild marks the named index as requiring a rebuild. It is the
// OnRebuild callback of every registered index and never blocks on index
// locks. Repeated requests before the rebuild starts are folded into one.
func (r *Registry) RequestRebuild(name string, cause error) {
	e, err := r.entry(name)
	if err != nil {
		r.logger.Warn("rebuild requested for unknown index", "index", name, "cause", cause)
		return
	}
	prev := Status(e.status.Swap(int32(StatusRequiresRebuild)))
	if prev == StatusRequiresRebuild {
		return
	}
	reason := "unspecified"
	if cause != nil {
		reason = cause.Error()
	}
	e.setReason(reason)
	r.deps.Metrics.SetRebuildStatus(name, int32(StatusRequiresRebuild))
	r.logger.Warn("index marked for rebuild",
		"index", name,
		"previous_status", prev.String(),
		"cause", cause,
	)

	if r.deps.Markers == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, markerTimeout)
	defer cancel()
	if err := r.deps.Markers.Mark(ctx, name, reason); err != nil {
		r.logger.Error("persisting rebuild marker failed", "index", name, "error", err)
	}
}

// CheckRebuild starts the rebuild of every index that requires one: the index
// is cleared and a RebuildEvent is published so that its content gets fed
// again. An index whose rebuild could not be started stays marked.
func (r *Registry) CheckRebuild(ctx context.Context) error {
	var errs []error
	for _, e := range r.snapshot() {
		if !e.status.CompareAndSwap(int32(StatusRequiresRebuild), int32(StatusRebuildInProgress)) {
			continue
		}
		if err := r.startRebuild(ctx, e); err != nil {
			e.status.CompareAndSwap(int32(StatusRebuildInProgress), int32(StatusRequiresRebuild))
			r.deps.Metrics.SetRebuildStatus(e.name, int32(StatusRequiresRebuild))
			errs = append(errs, fmt.Errorf("index %s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) startRebuild(ctx context.Context, e namedEntry) error {
	r.deps.Metrics.SetRebuildStatus(e.name, int32(StatusRebuildInProgress))
	if err := e.handle.Clear(); err != nil {
		return fmt.Errorf("clearing: %w", err)
	}
	event := RebuildEvent{
		Index:       e.name,
		Version:     e.handle.Version(),
		Reason:      e.getReason(),
		RequestedAt: time.Now().UTC(),
	}
	if r.deps.Notifier != nil {
		if err := r.deps.Notifier.NotifyRebuild(ctx, event); err != nil {
			return fmt.Errorf("publishing rebuild event: %w", err)
		}
	}
	r.logger.Info("index rebuild started", "index", e.name, "reason", event.Reason)
	return nil
}

// CompleteRebuild reports that the content of a rebuilding index has been fed
// again and its data can be trusted.
func (r *Registry) CompleteRebuild(ctx context.Context, name string) error {
	e, err := r.entry(name)
	if err != nil {
		return err
	}
	if !e.status.CompareAndSwap(int32(StatusRebuildInProgress), int32(StatusOK)) {
		return fmt.Errorf("%w: index %s is %s, not rebuilding",
			apperrors.ErrInvalidInput, name, Status(e.status.Load()))
	}
	e.setReason("")
	r.deps.Metrics.SetRebuildStatus(name, int32(StatusOK))
	r.logger.Info("index rebuild completed", "index", name)
	if r.deps.Markers != nil {
		if err := r.deps.Markers.Unmark(ctx, name); err != nil {
			return fmt.Errorf("removing rebuild marker of %s: %w", name, err)
		}
	}
	return nil
}

// RestoreMarkers re-applies rebuild requests persisted by a previous run.
func (r *Registry) RestoreMarkers(ctx context.Context) error {
	if r.deps.Markers == nil {
		return nil
	}
	marked, err := r.deps.Markers.Marked(ctx)
	if err != nil {
		return fmt.Errorf("loading rebuild markers: %w", err)
	}
	for name, reason := range marked {
		e, err := r.entry(name)
		if err != nil {
			r.logger.Warn("rebuild marker for unregistered index ignored", "index", name)
			continue
		}
		if e.status.CompareAndSwap(int32(StatusOK), int32(StatusRequiresRebuild)) {
			e.setReason(reason)
			r.deps.Metrics.SetRebuildStatus(name, int32(StatusRequiresRebuild))
			r.logger.Info("rebuild marker restored", "index", name, "reason", reason)
		}
	}
	return nil
}
