package store

import "github.com/pkg/errors"

// ConcurrentAppendError is returned when an append violates the
// UNIQUE(stream_id, seq) constraint: another writer already committed a
// message at the same position in the stream. Retriable by reloading
// state and re-deciding.
type ConcurrentAppendError struct {
	StreamID string
	Seq      int64
}

func (e *ConcurrentAppendError) Error() string {
	return errors.Errorf("concurrent append: stream %q already has a message at seq %d", e.StreamID, e.Seq).Error()
}

// ClaimLostError is returned by Turn.Ack when it discovers the claim was
// already released out from under it (normally by the stale-claim
// reaper, possibly followed by another worker re-claiming the row). The
// Router treats this as an infra race rather than a handler decision:
// it releases (a no-op if the claim already moved to another worker)
// and schedules the group for a short retry instead of routing through
// the reactor's OnException.
type ClaimLostError struct {
	GroupID  string
	StreamID string
}

func (e *ClaimLostError) Error() string {
	return errors.Errorf("claim lost: group %q stream %q", e.GroupID, e.StreamID).Error()
}
