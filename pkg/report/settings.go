package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voltledger/voltledger/pkg/log"
	"github.com/voltledger/voltledger/pkg/types"
)

// GetSettings returns the owner's settings, zero valued if never saved.
func (s *Service) GetSettings(ctx context.Context, ownerID string) (types.UserSettings, error) {
	settings, err := s.db.GetUserSettings(ctx, ownerID)
	if err != nil {
		return types.UserSettings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings, nil
}

// UpdateSettings validates and replaces the owner's settings.
func (s *Service) UpdateSettings(ctx context.Context, ownerID string, settings types.UserSettings) (types.UserSettings, error) {
	if err := settings.Validate(); err != nil {
		return types.UserSettings{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	settings.OwnerID = ownerID
	settings.UpdatedAt = s.now().UTC()
	if err := s.db.SetUserSettings(ctx, settings); err != nil {
		return types.UserSettings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "updated settings", slog.String("ownerID", ownerID), slog.Float64("tariff", settings.TariffPKRPerKWH))
	return settings, nil
}

// GetSolarConfig returns the owner's solar configuration.
func (s *Service) GetSolarConfig(ctx context.Context, ownerID string) (types.SolarConfig, error) {
	cfg, err := s.db.GetSolarConfig(ctx, ownerID)
	if err != nil {
		return types.SolarConfig{}, fmt.Errorf("failed to get solar config: %w", err)
	}
	return cfg, nil
}

// UpdateSolarConfig validates and replaces the owner's solar configuration.
func (s *Service) UpdateSolarConfig(ctx context.Context, ownerID string, cfg types.SolarConfig) (types.SolarConfig, error) {
	if err := cfg.Validate(); err != nil {
		return types.SolarConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.OwnerID = ownerID
	cfg.UpdatedAt = s.now().UTC()
	if err := s.db.SetSolarConfig(ctx, cfg); err != nil {
		return types.SolarConfig{}, fmt.Errorf("failed to save solar config: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "updated solar config", slog.String("ownerID", ownerID), slog.Bool("enabled", cfg.Enabled))
	return cfg, nil
}
