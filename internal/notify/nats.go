package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

// StreamName is the JetStream stream that captures page notifications.
const StreamName = "PAGESMITH_PAGES"

// NATSPublisher publishes notifications to a JetStream subject.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
	logger  *slog.Logger
	now     func() time.Time
}

// NewNATSPublisher connects to NATS and makes sure the stream exists.
func NewNATSPublisher(ctx context.Context, cfg config.NotifyConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return nil, errors.ConfigError("notifications are disabled").Build()
	}

	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("pagesmith"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to connect to NATS").
			WithContext("url", cfg.NATSURL).Build()
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to create JetStream context").Build()
	}

	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Page saved notifications",
		Subjects:    []string{cfg.Subject},
		MaxAge:      7 * 24 * time.Hour,
	}); err != nil {
		conn.Close()
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to ensure notification stream").
			WithContext("subject", cfg.Subject).Build()
	}

	logger.Info("NATS publisher initialized",
		slog.String("url", cfg.NATSURL),
		slog.String("subject", cfg.Subject))

	return &NATSPublisher{
		conn:    conn,
		js:      js,
		subject: cfg.Subject,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// PublishPageSaved publishes one page.saved message. The message ID is
// derived from page and timestamp so JetStream drops duplicates.
func (p *NATSPublisher) PublishPageSaved(ctx context.Context, evt PageSaved) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = p.now().UTC()
	}
	data, err := encode(evt, p.now)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal notification").Build()
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := p.js.Publish(pctx, p.subject, data, jetstream.WithMsgID(messageID(evt))); err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to publish notification").
			Retryable().WithContext("subject", p.subject).Build()
	}

	p.logger.Debug("Published page.saved",
		logfields.ProjectID(evt.ProjectID),
		logfields.PageName(evt.PageName))
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

func messageID(evt PageSaved) string {
	var b strings.Builder
	b.WriteString(evt.PageID)
	b.WriteByte('@')
	b.WriteString(evt.Timestamp.UTC().Format(time.RFC3339Nano))
	return b.String()
}
