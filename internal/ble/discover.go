package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultNamePrefix is the advertised name prefix of Godox LED fixtures.
const DefaultNamePrefix = "GD_LED"

// Discover scans for timeout and returns the peripherals whose advertised
// name starts with prefix, deduplicated by address in the order first seen.
func Discover(ctx context.Context, adapter Adapter, prefix string, timeout time.Duration) ([]Peripheral, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	all, err := adapter.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	slog.Debug("[BLE] scan finished", "seen", len(all))

	return filterByPrefix(all, prefix), nil
}

func filterByPrefix(peripherals []Peripheral, prefix string) []Peripheral {
	seen := make(map[string]bool)
	var matched []Peripheral
	for _, p := range peripherals {
		if !strings.HasPrefix(p.Name, prefix) {
			continue
		}
		key := NormalizeAddress(p.MAC)
		if seen[key] {
			continue
		}
		seen[key] = true
		matched = append(matched, p)
	}
	return matched
}
