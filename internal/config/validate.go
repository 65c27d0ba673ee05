package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *CollectorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if c.Server.WSURL == "" {
		return errors.New("server.ws_url is required")
	}

	if c.Channel.HeartbeatTimeout >= c.Channel.HeartbeatInterval {
		return fmt.Errorf("channel.heartbeat_timeout (%s) must be less than heartbeat_interval (%s)",
			c.Channel.HeartbeatTimeout, c.Channel.HeartbeatInterval)
	}
	if c.Channel.ReconnectDecay < 1 {
		return fmt.Errorf("channel.reconnect_decay must be >= 1, got %g", c.Channel.ReconnectDecay)
	}
	if c.Channel.ReconnectMaxDelay < c.Channel.ReconnectBaseDelay {
		return errors.New("channel.reconnect_max_delay must be >= reconnect_base_delay")
	}
	if c.Channel.MaxReconnectAttempts < 0 {
		return errors.New("channel.max_reconnect_attempts must be >= 0")
	}

	if c.Refresh.MinIntervalMs < 1 {
		return errors.New("refresh.min_interval_ms must be >= 1")
	}
	if c.Refresh.MaxIntervalMs < c.Refresh.MinIntervalMs {
		return errors.New("refresh.max_interval_ms must be >= min_interval_ms")
	}
	if c.Refresh.MaxPrecision < c.Refresh.MinPrecision {
		return errors.New("refresh.max_precision must be >= min_precision")
	}

	if err := c.Database.Timescale.validate("database.timescale"); err != nil {
		return err
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	for i, sub := range c.Subscriptions {
		if sub.Kind == "" {
			return fmt.Errorf("subscriptions[%d].kind is required", i)
		}
		if len(sub.AssetIDs) == 0 {
			return fmt.Errorf("subscriptions[%d].asset_ids must not be empty", i)
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
