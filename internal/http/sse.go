package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// heartbeatInterval keeps proxies from timing out idle streams.
const heartbeatInterval = 30 * time.Second

// EventSource is the bus surface the streamer subscribes through.
type EventSource interface {
	Subscribe(featureSlug string, ch chan *nats.Msg) (*nats.Subscription, error)
}

// EventStreamer bridges bus subjects onto Server-Sent Events.
type EventStreamer struct {
	source EventSource
	logger *zap.Logger
}

// NewEventStreamer returns a streamer over the given bus.
func NewEventStreamer(source EventSource, logger *zap.Logger) *EventStreamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventStreamer{source: source, logger: logger}
}

// Stream forwards every event of one feature to the client until it
// disconnects.
//
// The SSE event name is the subject's last token (lane, merge,
// record); the data payload is the bus message verbatim. Unlike an
// operation-progress stream there is no terminal event: scheduler
// activity is open-ended, so only the client ends the stream.
func (s *EventStreamer) Stream(c echo.Context, featureSlug string) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")

	msgs := make(chan *nats.Msg, 16)
	sub, err := s.source.Subscribe(featureSlug, msgs)
	if err != nil {
		return fmt.Errorf("subscribing to feature %s: %w", featureSlug, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	s.logger.Debug("sse stream opened", zap.String("feature", featureSlug))

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgs:
			parts := strings.Split(msg.Subject, ".")
			eventType := parts[len(parts)-1]

			fmt.Fprintf(c.Response(), "event: %s\n", eventType)
			fmt.Fprintf(c.Response(), "data: %s\n\n", msg.Data)
			c.Response().Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Response(), ": heartbeat\n\n")
			c.Response().Flush()

		case <-c.Request().Context().Done():
			s.logger.Debug("sse stream closed", zap.String("feature", featureSlug))
			return nil
		}
	}
}
