// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relaycmd

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/bytebridge/channel"
	"github.com/bureau-foundation/bytebridge/lib/config"
)

// Default middleware ports, used when the host argument has none.
const (
	defaultMQTTPort     = "1883"
	defaultRedisPort    = "6379"
	defaultPostgresPort = "5432"
)

// EndpointFactory builds an unopened channel endpoint for a bridge
// named name, talking to the middleware at host.
type EndpointFactory func(host, name string, cfg *config.Config, logger *slog.Logger) (channel.Endpoint, error)

// NewEndpoint is the default EndpointFactory. It selects the endpoint
// by cfg.Middleware.Kind.
func NewEndpoint(host, name string, cfg *config.Config, logger *slog.Logger) (channel.Endpoint, error) {
	if host == "" {
		return nil, fmt.Errorf("middleware host is required")
	}
	middleware := cfg.Middleware
	logger = logger.With("middleware", middleware.Kind)

	switch middleware.Kind {
	case config.MiddlewareMQTT:
		broker := host
		if !strings.Contains(host, "://") {
			broker = hostPort(host, defaultMQTTPort)
		}
		return &channel.MQTT{
			Broker:  broker,
			Name:    name,
			QoS:     byte(middleware.QoS),
			Timeout: middleware.ConnectTimeout,
			Logger:  logger,
		}, nil
	case config.MiddlewareRedis:
		return &channel.Redis{
			Address: hostPort(host, defaultRedisPort),
			Timeout: middleware.ConnectTimeout,
			Logger:  logger,
		}, nil
	case config.MiddlewarePostgres:
		return &channel.Postgres{
			ConnString: postgresConnString(host, middleware),
			Channel:    middleware.PostgresChannel,
			Logger:     logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown middleware %q", middleware.Kind)
	}
}

// hostPort appends defaultPort to host when host has no port.
func hostPort(host, defaultPort string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), defaultPort)
}

// postgresConnString builds a connection URL from the host argument. A
// host that is already a postgres:// URL is used as given.
func postgresConnString(host string, middleware config.MiddlewareConfig) string {
	if strings.HasPrefix(host, "postgres://") || strings.HasPrefix(host, "postgresql://") {
		return host
	}
	connURL := url.URL{
		Scheme: "postgres",
		Host:   hostPort(host, defaultPostgresPort),
		Path:   "/" + middleware.PostgresDatabase,
	}
	if middleware.PostgresUser != "" {
		connURL.User = url.User(middleware.PostgresUser)
	}
	// connect_timeout is whole seconds; round up so a sub-second
	// setting does not become 0 (no timeout).
	if seconds := (middleware.ConnectTimeout + time.Second - 1) / time.Second; seconds > 0 {
		connURL.RawQuery = "connect_timeout=" + strconv.Itoa(int(seconds))
	}
	return connURL.String()
}
