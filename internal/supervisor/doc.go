// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

// Package supervisor wires the long-running pipeline services into a suture
// v4 supervision tree. Services implement suture.Service (Serve(ctx) error
// plus fmt.Stringer) and are grouped into three layers for failure isolation:
// data (outbound WAL retry), pipeline (event consumer and view refresh
// scheduler), and ops (the operational HTTP server). Crashed services are
// restarted with exponential backoff; supervision events are logged through
// the sutureslog adapter.
package supervisor
