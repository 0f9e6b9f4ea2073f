// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

package database

import "errors"

// ErrUnknownViewFamily is returned for a view family outside the catalog.
var ErrUnknownViewFamily = errors.New("unknown materialized view family")
