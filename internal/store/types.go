// Package store implements the durable log: streams, messages, consumer
// groups, offsets, scheduled messages and workers, backed by PostgreSQL.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Stream is a monotone per-key sequence of Messages. Created on first
// append; Seq equals the highest Seq of any Message in the Stream.
type Stream struct {
	StreamID  string
	Seq       int64
	UpdatedAt time.Time
}

// Message is the generalisation of command and event: both live in the
// same log, distinguished only by Type.
type Message struct {
	GlobalSeq     int64
	ID            uuid.UUID
	StreamID      string
	Seq           int64
	Type          string
	Payload       []byte
	Metadata      []byte
	CausationID   *uuid.UUID
	CorrelationID *uuid.UUID
	CreatedAt     time.Time
}

// NewMessage is a message awaiting assignment of StreamID (for top-level
// appends where it's supplied separately), Seq, GlobalSeq and timestamps.
type NewMessage struct {
	StreamID      string
	Type          string
	Payload       []byte
	Metadata      []byte
	CausationID   *uuid.UUID
	CorrelationID *uuid.UUID
}

// ConsumerGroupStatus is the lifecycle status of a ConsumerGroup.
type ConsumerGroupStatus string

const (
	ConsumerGroupActive  ConsumerGroupStatus = "active"
	ConsumerGroupStopped ConsumerGroupStatus = "stopped"
)

// ConsumerGroup is the per-reactor bookkeeping row: one per reactor class.
type ConsumerGroup struct {
	GroupID          string
	Status           ConsumerGroupStatus
	HighestGlobalSeq int64
	ErrorContext     []byte
	RetryAt          *time.Time
}

// Offset is the per-(group, stream) cursor and claim state.
type Offset struct {
	GroupID    string
	StreamID   string
	GlobalSeq  int64
	Claimed    bool
	ClaimedAt  *time.Time
	ClaimedBy  *string
}

// ScheduledMessage is a message that becomes eligible for promotion into
// the log once AvailableAt has passed.
type ScheduledMessage struct {
	ID          uuid.UUID
	AvailableAt time.Time
	Message     NewMessage
}

// WorkerRecord is a liveness row for a worker process.
type WorkerRecord struct {
	ID       string
	LastSeen time.Time
	PID      int
	Host     string
	Info     string
}

// Claim is an exclusive lease of (GroupID, StreamID) held for the
// duration of one worker turn, together with the Message it unlocked.
type Claim struct {
	GroupID   string
	StreamID  string
	ClaimedBy string
	Message   Message
	// Replaying is true when Message.GlobalSeq <= the group's
	// HighestGlobalSeq at the moment of reservation: the group has seen
	// this message before and side effects should be suppressed.
	Replaying bool
}

// GroupStats summarises a consumer group for the operator surface.
type GroupStats struct {
	GroupID           string
	Status            ConsumerGroupStatus
	OldestGlobalSeq   int64
	NewestGlobalSeq   int64
	StreamCount       int
	HighestGlobalSeq  int64
}
