package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"gator-overflow/internal/models"

	"github.com/redis/go-redis/v9"
)

const activityChannel = "gator-overflow:activity"

// RedisRelay shares question activity between server instances over Redis
// pub/sub so watchers connected to any instance see every write.
type RedisRelay struct {
	client  *redis.Client
	channel string
}

var _ Subscriber = (*RedisRelay)(nil)

func NewRedisRelay(client *redis.Client) *RedisRelay {
	return &RedisRelay{client: client, channel: activityChannel}
}

// ConnectRedis opens and pings a Redis client.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	log.Println("Successfully connected to Redis!")
	return client, nil
}

func (r *RedisRelay) Publish(ctx context.Context, activity models.Activity) error {
	b, err := json.Marshal(activity)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

// Listen subscribes to the activity channel, calls ready once Redis has
// confirmed the subscription and hands every message to deliver until ctx
// is cancelled.
func (r *RedisRelay) Listen(ctx context.Context, deliver func(models.Activity), ready func()) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	log.Printf("Relay listening on %s", r.channel)
	if ready != nil {
		ready()
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var activity models.Activity
			if err := json.Unmarshal([]byte(msg.Payload), &activity); err != nil {
				log.Printf("Relay: dropping malformed message: %v", err)
				continue
			}
			deliver(activity)
		}
	}
}
