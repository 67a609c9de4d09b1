package errx

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to the unified AppError type with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}

	return New(err, http.StatusBadGateway, RedisErrorMessage)
}

// WrapStore maps document store errors to the unified AppError type.
func WrapStore(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, StoreErrorMessage)
}
