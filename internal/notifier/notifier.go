// Package notifier implements the two-signal transport workers use to
// wake on new arrivals: "messages appended of types T" and "reactor R
// resumed". Two implementations share this interface: an in-process
// pub/sub hub and a PostgreSQL LISTEN/NOTIFY transport.
package notifier

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// Channel is the reserved LISTEN/NOTIFY channel name.
const Channel = "new_messages"

// Kind distinguishes the two signal events.
type Kind string

const (
	MessagesAppended Kind = "messages_appended"
	ReactorResumed   Kind = "reactor_resumed"
)

// Signal is one delivered notification.
type Signal struct {
	Kind Kind
	// Types holds the appended message types for a MessagesAppended signal.
	Types []string
	// GroupID holds the resumed group id for a ReactorResumed signal.
	GroupID string
}

// Execer is satisfied by *pgxpool.Pool, pgx.Tx and *pgx.Conn alike, so
// Emit can run pg_notify inside whatever transaction is currently open
// (the Log Store's append transaction) rather than after it commits.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Notifier is implemented by Inprocess and PG.
type Notifier interface {
	// Listen returns a channel of delivered signals. The channel is
	// closed when ctx is done.
	Listen(ctx context.Context) (<-chan Signal, error)
	// EmitMessagesAppended fires a MessagesAppended signal for the given
	// (de-duplicated) types, using exec so a database-backed Notifier
	// can run pg_notify inside the caller's transaction.
	EmitMessagesAppended(ctx context.Context, exec Execer, types []string) error
	// EmitReactorResumed fires a ReactorResumed signal for groupID.
	EmitReactorResumed(ctx context.Context, exec Execer, groupID string) error
	// Close releases any resources Listen acquired.
	Close() error
}
