package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/f-sync/socialpulse/internal/config"
	"github.com/f-sync/socialpulse/internal/features"
	"github.com/f-sync/socialpulse/internal/notify"
	"github.com/f-sync/socialpulse/internal/snapshots"
)

const (
	errMessageOpenStore      = "open snapshot store"
	errMessageBuildGate      = "build feature gate"
	errMessageBuildNotifier  = "build notifier"
	errMessageUnknownStorage = "unknown storage driver"

	logMessageStoreOpened = "snapshot store opened"
	logFieldDriver        = "driver"
	logFieldCapacity      = "capacity"
	logFieldFeatures      = "features"
)

// OpenStore opens the snapshot store selected by the storage section.
func OpenStore(storage config.StorageConfig) (snapshots.Store, error) {
	capacity := snapshots.WithCapacity(storage.Capacity)
	switch storage.Driver {
	case config.StorageDriverMemory, "":
		return snapshots.NewMemoryStore(capacity), nil
	case config.StorageDriverSQLite:
		store, err := snapshots.OpenSQLiteStore(storage.Path, capacity)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errMessageOpenStore, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%s: %s", errMessageUnknownStorage, storage.Driver)
	}
}

// NewFromConfig wires a Service from loaded configuration. The caller closes the
// returned service to release the store.
func NewFromConfig(loaded config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gate, err := features.NewTierGate(loaded.Features.Settings())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageBuildGate, err)
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if loaded.Telegram.Enabled {
		telegramNotifier, err := notify.NewTelegramNotifier(loaded.Telegram.NotifierConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errMessageBuildNotifier, err)
		}
		notifier = telegramNotifier
	}

	store, err := OpenStore(loaded.Storage)
	if err != nil {
		return nil, err
	}
	logger.Info(logMessageStoreOpened,
		zap.String(logFieldDriver, loaded.Storage.Driver),
		zap.Int(logFieldCapacity, loaded.Storage.Capacity),
		zap.Any(logFieldFeatures, features.Snapshot(gate)),
	)

	return New(Dependencies{
		Logger:   logger,
		Store:    store,
		Gate:     gate,
		Notifier: notifier,
	}), nil
}

// Close releases the snapshot store.
func (service *Service) Close() error {
	return service.store.Close()
}
