package notify

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/okian/showcase/internal/domain/model"
	"github.com/okian/showcase/pkg/logger"
	"github.com/okian/showcase/pkg/metrics"
)

// Topic carries every ProfileChanged published through a Bridge.
const Topic = "profile.changed"

const (
	metaUserID       = "user_id"
	metaReason       = "reason"
	defaultBufferLen = 64
)

// Bridge republishes notifications on a watermill Pub/Sub so consumers can
// receive them asynchronously.
type Bridge struct {
	pubsub *gochannel.GoChannel
	logger logger.Logger
}

// NewBridge creates a bridge backed by an in-process gochannel Pub/Sub.
func NewBridge(l logger.Logger) *Bridge {
	if l == nil {
		l = logger.Nop()
	}
	return &Bridge{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: defaultBufferLen,
		}, newWatermillLogger(l)),
		logger: l,
	}
}

// Attach subscribes the bridge to b and returns the subscription.
func (br *Bridge) Attach(b *Broadcaster) *Subscription {
	return b.Subscribe(br.Publish)
}

// Publish encodes ev and publishes it on Topic. Failures are logged only.
func (br *Bridge) Publish(ctx context.Context, ev model.ProfileChanged) {
	data, err := json.Marshal(ev)
	if err != nil {
		metrics.RecordBridgePublishError()
		br.logger.Error(ctx, "encode profile change", logger.UserID(ev.UserID), logger.Error(err))
		return
	}
	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set(metaUserID, ev.UserID)
	msg.Metadata.Set(metaReason, string(ev.Reason))
	if err := br.pubsub.Publish(Topic, msg); err != nil {
		metrics.RecordBridgePublishError()
		br.logger.Error(ctx, "publish profile change", logger.UserID(ev.UserID), logger.Error(err))
	}
}

// Subscribe streams the changes of userID until ctx is done or the bridge is
// closed. The returned channel is closed afterwards.
func (br *Bridge) Subscribe(ctx context.Context, userID string) (<-chan model.ProfileChanged, error) {
	msgs, err := br.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", Topic, err)
	}
	out := make(chan model.ProfileChanged, defaultBufferLen)
	go func() {
		defer close(out)
		for msg := range msgs {
			msg.Ack()
			if msg.Metadata.Get(metaUserID) != userID {
				continue
			}
			var ev model.ProfileChanged
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				br.logger.Warn(ctx, "decode profile change", logger.Error(err))
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the Pub/Sub down, closing every subscription.
func (br *Bridge) Close() error {
	return br.pubsub.Close()
}

// watermillLogger adapts logger.Logger to watermill.LoggerAdapter.
type watermillLogger struct {
	l logger.Logger
}

func newWatermillLogger(l logger.Logger) watermill.LoggerAdapter {
	return watermillLogger{l: l.Named("watermill")}
}

func toFields(fields watermill.LogFields) []logger.Field {
	out := make([]logger.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, logger.Any(k, v))
	}
	return out
}

func (w watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.l.Error(context.Background(), msg, append(toFields(fields), logger.Error(err))...)
}

func (w watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.l.Debug(context.Background(), msg, toFields(fields)...)
}

func (w watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.l.Debug(context.Background(), msg, toFields(fields)...)
}

func (w watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.l.Debug(context.Background(), msg, toFields(fields)...)
}

func (w watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{l: w.l.With(toFields(fields)...)}
}
