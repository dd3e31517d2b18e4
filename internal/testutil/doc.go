// Package testutil provides deterministic helpers for machine tests:
// reproducible machine ids and a background recorder for state streams.
package testutil
