package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/centrifugal/gocent"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"referrald/internal/models"
	"referrald/internal/providers"
	"referrald/internal/structures"
)

// LogSink writes every event to the events log channel.
type LogSink struct {
	logger providers.Logger
}

func NewLogSink(logger providers.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, evt *models.Event) error {
	switch evt.Name {
	case models.EventReferrerBound:
		s.logger.Infof(providers.TypeEvents, "#%d %s subject=%s referrer=%s", evt.Seq, evt.Name, evt.Subject.Hex(), evt.Referrer.Hex())
	case models.EventUserPurchased:
		s.logger.Infof(providers.TypeEvents, "#%d %s subject=%s amount=%s", evt.Seq, evt.Name, evt.Subject.Hex(), evt.PurchaseAmount.Dec())
	case models.EventRewardCalculated:
		s.logger.Infof(providers.TypeEvents, "#%d %s purchaser=%s referrer=%s amount=%s points=%s level=%d",
			evt.Seq, evt.Name, evt.Subject.Hex(), evt.Referrer.Hex(), evt.PurchaseAmount.Dec(), evt.PointsAmount.Dec(), evt.Level)
	default:
		s.logger.Infof(providers.TypeEvents, "#%d %s", evt.Seq, evt.Name)
	}
	return nil
}

// RedisSink publishes the JSON event on a single pub/sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, evt *models.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, payload).Err()
}

// CentrifugoSink broadcasts each event on a per-name channel and on one
// channel per involved address, so clients can follow a single wallet.
type CentrifugoSink struct {
	client *gocent.Client
	prefix string
}

func NewCentrifugoSink(client *gocent.Client, prefix string) *CentrifugoSink {
	return &CentrifugoSink{client: client, prefix: prefix}
}

func (s *CentrifugoSink) Name() string { return "centrifugo" }

func (s *CentrifugoSink) Deliver(ctx context.Context, evt *models.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	for _, ch := range s.channels(evt) {
		if err := s.client.Publish(ctx, ch, payload); err != nil {
			return fmt.Errorf("publish %s: %w", ch, err)
		}
	}
	return nil
}

func (s *CentrifugoSink) channels(evt *models.Event) []string {
	addrs := evt.Addresses()
	out := make([]string, 0, len(addrs)+1)
	out = append(out, s.prefix+":"+string(evt.Name))
	for _, a := range addrs {
		out = append(out, s.prefix+":"+strings.ToLower(a.Hex()))
	}
	return out
}

// NewSinks builds the enabled sinks. redisClient may be nil when the redis
// sink is disabled.
func NewSinks(conf *structures.Config, redisClient *redis.Client, logger providers.Logger) []Sink {
	var sinks []Sink
	if conf.Events.LogSink {
		sinks = append(sinks, NewLogSink(logger))
	}
	if conf.Events.Redis.Enabled && redisClient != nil {
		sinks = append(sinks, NewRedisSink(redisClient, conf.Events.Redis.Channel))
	}
	if cc := conf.Events.Centrifugo; cc.Enabled {
		client := gocent.New(gocent.Config{
			Addr: cc.Addr,
			Key:  cc.Key,
		})
		sinks = append(sinks, NewCentrifugoSink(client, cc.Prefix))
	}
	for _, s := range sinks {
		logger.Infof(providers.TypeEvents, "Event sink enabled: %s", s.Name())
	}
	return sinks
}
