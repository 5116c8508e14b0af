// Package redis provides the go-redis client used by the service and the
// Redis-backed fixed-window frame rate limiter.
package redis
