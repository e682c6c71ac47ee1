package sink

import (
	"context"
	"fmt"

	nats "github.com/nats-io/nats.go"
)

// Header names set on every NATS message.
const (
	HeaderEvent = "Baton-Event"
	HeaderAgent = "Baton-Agent"
)

// NATSSink publishes envelopes to a NATS subject.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	owned   bool
}

// NewNATSSink publishes on subject through conn. The caller keeps
// ownership of conn.
func NewNATSSink(conn *nats.Conn, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: subject}
}

// ConnectNATS dials url and returns a sink that owns the connection.
func ConnectNATS(url, subject string, opts ...nats.Option) (*NATSSink, error) {
	opts = append([]nats.Option{nats.Name("baton")}, opts...)
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats sink: connect %s: %w", url, err)
	}
	return &NATSSink{conn: conn, subject: subject, owned: true}, nil
}

// Send implements Sink. Publishing is buffered by the client; ctx only
// guards against sending after the caller gave up.
func (s *NATSSink) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("nats sink: encode: %w", err)
	}

	msg := nats.NewMsg(s.subject)
	msg.Data = data
	msg.Header.Set(HeaderEvent, env.Event)
	if env.AgentName != "" {
		msg.Header.Set(HeaderAgent, env.AgentName)
	}
	return s.conn.PublishMsg(msg)
}

// Close flushes pending messages. It drains and closes the connection if
// ConnectNATS created it.
func (s *NATSSink) Close() error {
	if !s.owned {
		return s.conn.Flush()
	}
	return s.conn.Drain()
}
