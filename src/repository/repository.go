package repository

import (
	"context"
	"errors"
	"fmt"

	cfg "imghost/src/configuration"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

type (
	// MetadataStore is a durable key-value store for serialized records.
	// Implementations serialize their own per-key operations.
	MetadataStore interface {
		Get(ctx context.Context, key string) ([]byte, error)
		Put(ctx context.Context, key string, value []byte) error
		Delete(ctx context.Context, key string) error
		// List returns every key starting with prefix, in no particular order.
		List(ctx context.Context, prefix string) ([]string, error)
		Ping(ctx context.Context) error
		Close() error
	}
)

// NewMetadataStore opens the store selected by config.Metadata.Driver.
func NewMetadataStore(config *cfg.Properties) (MetadataStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config is not valid")
	}
	switch config.Metadata.Driver {
	case cfg.DriverRedis:
		return NewRedisStore(config.Metadata.RedisAddr, config.Metadata.RedisPassword, config.Metadata.RedisDB), nil
	case cfg.DriverBadger:
		return NewBadgerStore(config.Metadata.BadgerPath)
	case cfg.DriverMemory:
		return NewInMemoryDB(), nil
	}
	return nil, fmt.Errorf("unknown metadata driver %q", config.Metadata.Driver)
}
