package database

import (
	"context"
	"fmt"
	"time"

	"cmsanalytics/api/config"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"
)

type ClickHouseClient struct {
	Conn   clickhouse.Conn
	logger *logrus.Logger
}

// NewClickHouseDB opens the native connection used by the beacon mirror.
func NewClickHouseDB(cfg config.Config, logger *logrus.Logger) (*ClickHouseClient, error) {
	if !cfg.ClickHouseEnabled() {
		return nil, fmt.Errorf("CLICKHOUSE_HOST or CLICKHOUSE_DB_NAME is not set")
	}
	if cfg.ClickHousePort <= 0 {
		return nil, fmt.Errorf("invalid CLICKHOUSE_NATIVE_PORT: %d", cfg.ClickHousePort)
	}

	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.ClickHouseHost, cfg.ClickHousePort)},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "cms-analytics", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via Native TCP: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.WithField("host", cfg.ClickHouseHost).Info("Successfully connected to ClickHouse database")
	return &ClickHouseClient{Conn: conn, logger: logger}, nil
}

func (c *ClickHouseClient) Close() {
	if c.Conn != nil {
		c.Conn.Close()
		c.logger.Info("ClickHouse connection closed")
	}
}
