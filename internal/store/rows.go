package store

// Row-scanning helpers. Much like a keyspace decoder strictly asserts
// that a decoded entity's identity matches the key used to look it up,
// scanConsumerGroup asserts that the scanned row's group_id matches the
// id the query was issued for -- the database is source-of-truth for
// naming, but a mismatch there means a query or index is wrong, and
// that's worth failing loudly on rather than silently returning a
// mislabeled row. scanMessage and scanMessages decode rows as returned,
// without such an identity check.

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	if err := row.Scan(
		&m.GlobalSeq, &m.ID, &m.StreamID, &m.Seq, &m.Type,
		&m.Payload, &m.Metadata, &m.CausationID, &m.CorrelationID, &m.CreatedAt,
	); err != nil {
		return Message{}, err
	}
	return m, nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	defer rows.Close()
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanConsumerGroup(wantID string, row pgx.Row) (ConsumerGroup, error) {
	var g ConsumerGroup
	if err := row.Scan(&g.GroupID, &g.Status, &g.HighestGlobalSeq, &g.ErrorContext, &g.RetryAt); err != nil {
		return ConsumerGroup{}, err
	}
	if g.GroupID != wantID {
		return ConsumerGroup{}, fmt.Errorf("consumer_groups row id %q doesn't match queried id %q", g.GroupID, wantID)
	}
	return g, nil
}
