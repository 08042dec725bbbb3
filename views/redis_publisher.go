package views

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"adxl-logger/models"
	"adxl-logger/utils"
)

const eventHistoryLen = 100

// RedisPublisher fans live ticks and completed events out over Redis
// pub/sub. Event summaries are also kept in a capped list so late
// subscribers can catch up.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     *logrus.Entry
}

func NewRedisPublisher(cfg utils.RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	p := &RedisPublisher{
		client:  client,
		channel: cfg.Channel,
		log:     utils.Component("redis").WithField("channel", cfg.Channel),
	}
	p.log.Infof("redis connected (%s)", cfg.Addr)
	return p, nil
}

func (p *RedisPublisher) LiveChannel() string  { return p.channel + ":live" }
func (p *RedisPublisher) EventChannel() string { return p.channel + ":events" }
func (p *RedisPublisher) EventListKey() string { return p.channel + ":events:recent" }

// PublishLive sends one tick to the live channel.
func (p *RedisPublisher) PublishLive(ctx context.Context, u *models.LiveUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal live update: %w", err)
	}
	if err := p.client.Publish(ctx, p.LiveChannel(), data).Err(); err != nil {
		return fmt.Errorf("publish live update: %w", err)
	}
	return nil
}

// PublishEvent publishes the summary of a completed event (metadata,
// counts, warnings; the samples stay in the CSV files).
func (p *RedisPublisher) PublishEvent(ctx context.Context, rec *models.EventRecord) error {
	summary := *rec
	summary.Accel, summary.Incl, summary.Temperature = nil, nil, nil
	data, err := json.Marshal(&summary)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, p.EventChannel(), data)
	pipe.LPush(ctx, p.EventListKey(), data)
	pipe.LTrim(ctx, p.EventListKey(), 0, eventHistoryLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
