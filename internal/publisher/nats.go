package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	contentTypeHeader = "Content-Type"
	contentTypeJSON   = "application/json"
	flushTimeout      = 2 * time.Second
)

// NATSPublisher sends chart updates as JSON messages over one connection.
type NATSPublisher struct {
	nc          *nats.Conn
	logSubjects bool
	metrics     PublisherMetrics
	log         zerolog.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

type NATSOption func(*NATSPublisher)

func WithPublisherMetrics(m PublisherMetrics) NATSOption {
	return func(p *NATSPublisher) { p.metrics = m }
}

func WithPublisherLogger(l zerolog.Logger) NATSOption {
	return func(p *NATSPublisher) { p.log = l }
}

// WithSubjectLogging logs every subject published to.
func WithSubjectLogging(on bool) NATSOption {
	return func(p *NATSPublisher) { p.logSubjects = on }
}

// NewNATSPublisher connects to url. The connection retries forever once
// established; the initial connect must succeed.
func NewNATSPublisher(url string, opts ...NATSOption) (*NATSPublisher, error) {
	p := &NATSPublisher{log: zerolog.Nop()}
	for _, o := range opts {
		o(p)
	}
	nc, err := nats.Connect(url,
		nats.Name("stringline-viewer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			p.setConnected(false)
			p.log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			p.setConnected(true)
			p.log.Info().Str("server", c.ConnectedUrlRedacted()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			p.setConnected(false)
			p.log.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	p.nc = nc
	p.setConnected(true)
	return p, nil
}

func (p *NATSPublisher) setConnected(up bool) {
	if p.metrics != nil {
		p.metrics.NATSSetConnected(up)
	}
}

// Close flushes what is buffered, then drains the connection.
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.FlushTimeout(flushTimeout); err != nil {
		p.log.Warn().Err(err).Msg("nats flush on close")
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

// Publish sends v as JSON on subject.
func (p *NATSPublisher) Publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	msg := nats.NewMsg(subject)
	msg.Header.Set(contentTypeHeader, contentTypeJSON)
	msg.Data = b

	start := time.Now()
	err = p.nc.PublishMsg(msg)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if p.logSubjects {
		p.log.Debug().Str("subject", subject).Int("bytes", len(b)).Msg("nats publish")
	}
	return nil
}

// subjectToken makes s usable as a single subject token: no whitespace,
// separators or wildcards.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	if s = repl.Replace(s); s == "" {
		return "_"
	}
	return s
}
