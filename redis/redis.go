package redis

import (
	"context"

	"github.com/go-redis/redis/v8"
)

var Ctx = context.Background()

// Connect creates a redis client from a URI and verifies the connection.
func Connect(uri string) (*redis.Client, error) {
	options, err := redis.ParseURL(uri)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(options)
	if err = client.Ping(Ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

type Client = redis.Client

type Message = redis.Message

const ErrNil = redis.Nil

type PubSub = redis.PubSub
