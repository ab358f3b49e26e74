package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/config"
)

// LedgerOpener opens a ledger backend from configuration.
type LedgerOpener func(ctx context.Context, cfg *config.Config) (Ledger, error)

var (
	ledgerBackends   = make(map[string]LedgerOpener)
	ledgerBackendsMu sync.RWMutex
)

// RegisterLedgerBackend registers a ledger backend under a name.
// This is called from the backend packages' init to avoid import cycles.
func RegisterLedgerBackend(name string, open LedgerOpener) {
	ledgerBackendsMu.Lock()
	defer ledgerBackendsMu.Unlock()
	ledgerBackends[name] = open
}

// LedgerBackends returns the sorted names of the registered backends.
func LedgerBackends() []string {
	ledgerBackendsMu.RLock()
	defer ledgerBackendsMu.RUnlock()
	names := make([]string, 0, len(ledgerBackends))
	for name := range ledgerBackends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenLedger opens the backend selected by cfg.Ledger.Backend.
func OpenLedger(ctx context.Context, cfg *config.Config) (Ledger, error) {
	ledgerBackendsMu.RLock()
	open, ok := ledgerBackends[cfg.Ledger.Backend]
	ledgerBackendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ledger backend %q not registered (available: %s)",
			cfg.Ledger.Backend, strings.Join(LedgerBackends(), ", "))
	}
	ledger, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s ledger: %w", cfg.Ledger.Backend, err)
	}
	return ledger, nil
}
