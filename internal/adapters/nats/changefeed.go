package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/studyspot/internal/core/domain"
)

const (
	changeStream        = "STUDYSPOT_CHANGES"
	changeSubjectPrefix = "studyspot.changes"
)

// ChangeSubject returns the subject a change for table is published on.
// Changes without a filter go to the "all" partition.
func ChangeSubject(table, filter string) string {
	if filter == "" {
		filter = "all"
	}
	return changeSubjectPrefix + "." + table + "." + filter
}

// subscribeSubject matches one filter partition, or every partition of table
// when filter is empty.
func subscribeSubject(table, filter string) string {
	if filter == "" {
		return changeSubjectPrefix + "." + table + ".>"
	}
	return ChangeSubject(table, filter)
}

// ChangeFeed implements ports.ChangeFeed over a JetStream stream.
type ChangeFeed struct {
	client *Client
}

// NewChangeFeed ensures the change stream exists.
func NewChangeFeed(client *Client) (*ChangeFeed, error) {
	cfg := nats.StreamConfig{
		Name:      changeStream,
		Subjects:  []string{changeSubjectPrefix + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    1 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := client.js.AddStream(&cfg); err != nil {
		// Stream may already exist
		if _, err := client.js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}
	return &ChangeFeed{client: client}, nil
}

// Subscribe delivers new changes for table (and filter, when set). An empty
// filter receives every change of the table.
func (f *ChangeFeed) Subscribe(ctx context.Context, table, filter string, onChange func(domain.RowChange)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if table == "" {
		return nil, fmt.Errorf("change feed: table is required")
	}
	subject := subscribeSubject(table, filter)

	sub, err := f.client.js.Subscribe(subject, func(msg *nats.Msg) {
		var change domain.RowChange
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			f.client.logger.Warn("dropping malformed change", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if change.Table == "" {
			change.Table = tableOf(msg.Subject)
		}
		onChange(change)
		_ = msg.Ack()
	},
		nats.DeliverNew(),
		nats.ManualAck(),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Publish emits a change on the feed.
func (f *ChangeFeed) Publish(ctx context.Context, change domain.RowChange, filter string) error {
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	_, err = f.client.js.Publish(ChangeSubject(change.Table, filter), data, nats.Context(ctx))
	return err
}

func tableOf(subject string) string {
	rest := strings.TrimPrefix(subject, changeSubjectPrefix+".")
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		return rest[:i]
	}
	return rest
}
