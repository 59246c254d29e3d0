package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/toncenter/ton-indexer/ton-classify-go/emulated"
	"github.com/toncenter/ton-indexer/ton-classify-go/events"
	"github.com/toncenter/ton-indexer/ton-classify-go/models"
	"github.com/toncenter/ton-indexer/ton-classify-go/repository"
)

// Consumer classifies speculative traces the moment they are announced on
// the pub/sub channel. One trace at a time, no batching: the channel already
// delivers traces individually and latency is the objective. Results are not
// persisted; failures are logged and the loop continues.
type Consumer struct {
	redis     *redis.Client
	processor *events.Processor
	channel   string
	logger    *logrus.Logger
}

func NewConsumer(redisClient *redis.Client, processor *events.Processor, channel string, logger *logrus.Logger) *Consumer {
	return &Consumer{
		redis:     redisClient,
		processor: processor,
		channel:   channel,
		logger:    logger,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	sub := c.redis.Subscribe(ctx, c.channel)
	defer sub.Close()
	ch := sub.Channel()

	c.logger.WithField("channel", c.channel).Info("Listening for speculative traces")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			traceId := msg.Payload
			actions, err := c.processTrace(ctx, traceId)
			if err != nil {
				c.logger.WithError(err).WithField("trace", traceId).Error("Failed to process emulated trace")
				continue
			}
			c.logger.WithFields(logrus.Fields{
				"trace":   traceId,
				"actions": len(actions),
			}).Debug("Classified emulated trace")
		}
	}
}

// processTrace fetches the trace payload from the keyed store, rebuilds the
// graph and classifies it against the self-contained interface backend fed
// from the same payload.
func (c *Consumer) processTrace(ctx context.Context, traceId string) ([]models.Action, error) {
	fields, err := c.redis.HGetAll(ctx, traceId).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch trace payload: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("trace %s not found", traceId)
	}
	raw := make(map[string][]byte, len(fields))
	for key, value := range fields {
		raw[key] = []byte(value)
	}

	trace, err := emulated.DeserializeTrace(traceId, raw)
	if err != nil {
		return nil, err
	}
	repo := repository.NewEmulatedRepository(raw)
	return c.processor.Delegate(ctx, repo, trace)
}
