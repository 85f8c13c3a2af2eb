// Package redis keeps session records in Redis and relays auth-state changes across instances
// over the auth:state pub/sub channel.
package redis
