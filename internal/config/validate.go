// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/tradesight/granary/internal/validation"
)

// validate is the shared validator instance. Struct tag validation is
// stateless, so a single instance is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags plus cross-field constraints that tags can't
// express. Called by Load after all layers are merged.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return validation.Translate(err)
	}

	if c.Forecasting.External.Enabled && c.Forecasting.External.URL == "" {
		return fmt.Errorf("forecasting.external.url is required when the external model is enabled")
	}

	if c.Consumer.WALEnabled && c.Consumer.WALPath == "" {
		return fmt.Errorf("consumer.wal_path is required when the outbound WAL is enabled")
	}

	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("nats.store_dir is required when the embedded server is enabled")
	}

	return nil
}
