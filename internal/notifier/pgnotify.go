package notifier

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pollTimeout bounds how long a single WaitForNotification call blocks,
// so the listener's stop flag (ctx.Done) stays observable even with no
// traffic -- the same role appendChunkTimeout plays in the teacher's
// append stream pump.
var pollTimeout = 5 * time.Second

// PG is a Notifier backed by PostgreSQL LISTEN/NOTIFY. The publisher
// side runs pg_notify inside the caller's transaction, so delivery is
// atomic with commit; the listener side holds one dedicated connection
// and pumps notifications into a channel from a background goroutine.
type PG struct {
	pool    *pgxpool.Pool
	channel string
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool, channel: Channel}
}

func (n *PG) Listen(ctx context.Context) (<-chan Signal, error) {
	conn, err := n.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN \""+n.channel+"\""); err != nil {
		conn.Release()
		return nil, err
	}

	out := make(chan Signal, 64)

	go func() {
		defer close(out)
		defer conn.Release()

		backoff := 100 * time.Millisecond
		for {
			if ctx.Err() != nil {
				return
			}

			waitCtx, cancel := context.WithTimeout(ctx, pollTimeout)
			notification, err := conn.Conn().WaitForNotification(waitCtx)
			cancel()

			switch {
			case err == nil:
				backoff = 100 * time.Millisecond
				sig, err := decodePayload(notification.Payload)
				if err != nil {
					log.WithError(err).Warn("notifier: dropping malformed notification")
					continue
				}
				select {
				case out <- sig:
				case <-ctx.Done():
					return
				}
			case ctx.Err() != nil:
				return
			case waitCtx.Err() == context.DeadlineExceeded:
				// Plain poll timeout; loop and re-check ctx.Done().
			default:
				// TransientIOError: the listen connection failed. After an
				// exponentially growing pause (capped near 5s), LISTEN is
				// issued again on the same connection; the connection
				// itself is not replaced. The catch-up poller and
				// stale-claim reaper cover any missed pushes meanwhile.
				log.WithError(err).Warn("notifier: listen connection error, re-issuing LISTEN")
				time.Sleep(backoff)
				if backoff < 5*time.Second {
					backoff *= 2
				}
				if _, lerr := conn.Exec(ctx, "LISTEN \""+n.channel+"\""); lerr != nil && ctx.Err() == nil {
					log.WithError(lerr).Warn("notifier: re-LISTEN failed")
				}
			}
		}
	}()

	return out, nil
}

func (n *PG) EmitMessagesAppended(ctx context.Context, exec Execer, types []string) error {
	if len(types) == 0 {
		return nil
	}
	return n.emit(ctx, exec, Signal{Kind: MessagesAppended, Types: types})
}

func (n *PG) EmitReactorResumed(ctx context.Context, exec Execer, groupID string) error {
	return n.emit(ctx, exec, Signal{Kind: ReactorResumed, GroupID: groupID})
}

func (n *PG) emit(ctx context.Context, exec Execer, s Signal) error {
	_, err := exec.Exec(ctx, "SELECT pg_notify($1, $2)", n.channel, encodePayload(s))
	return err
}

func (n *PG) Close() error { return nil }
