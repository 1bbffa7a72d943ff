// Package orchestration composes the vault, zone, and territory tiers
// into the handful of higher-level operations the CLI calls: opening a
// container, detecting a filesystem, validating structural integrity,
// and running the full open-zones-territories-summary pipeline.
package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/model"
	"github.com/forensiccore/diskvault/internal/stream"
	"github.com/forensiccore/diskvault/internal/territory"
	"github.com/forensiccore/diskvault/internal/vault"
	"github.com/forensiccore/diskvault/internal/zone"
)

var log = slog.Default().With("component", "orchestration")

// OpenVault detects path's container format and opens it as a Vault.
// Thin wrapper over vault.Open; exists so callers only need to import
// this package.
func OpenVault(path string, cfg vault.Config) (vault.Vault, error) {
	log.Debug("opening vault", "path", path, "use_mmap", cfg.UseMmap)
	v, err := vault.Open(path, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("opened vault", "path", path, "type", v.Identify(), "length", v.Length())
	return v, nil
}

// DetectTerritory probes s for a recognized filesystem.
func DetectTerritory(s stream.Stream) (territory.Territory, error) {
	t, err := territory.Detect(s)
	if err != nil {
		return nil, err
	}
	log.Debug("detected territory", "type", t.Identify())
	return t, nil
}

// ZoneReport describes one Zone and, if a filesystem was recognized
// inside it, the Territory detected there.
type ZoneReport struct {
	Zone          model.Zone
	TerritoryType string // "" if no recognized filesystem
	Label         string
	Err           error // non-nil if territory detection failed for this zone
}

// IntegrityReport is the result of ValidateIntegrity: the vault and zone
// table identified, and the zones that failed the bounds check. Boot
// signatures and table CRCs are checked inside zone.Parse; a failure
// there is returned as ValidateIntegrity's error, not recorded here.
type IntegrityReport struct {
	VaultType    string
	VaultLength  uint64
	ZoneTable    string
	ZoneCount    int
	ZoneFailures []string // human-readable descriptions of any zone whose bounds failed validation
}

// Healthy reports whether every check in the report passed.
func (r *IntegrityReport) Healthy() bool { return len(r.ZoneFailures) == 0 }

// ValidateIntegrity re-walks v's zone table and checks every Zone's
// bounds against the vault's logical length, the one structural
// invariant every tier above is required to uphold (Offset+Length <=
// container length, Length > 0).
func ValidateIntegrity(v vault.Vault) (*IntegrityReport, error) {
	s, err := v.Stream()
	if err != nil {
		return nil, err
	}

	zt, err := zone.Parse(s, 512)
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{
		VaultType:   v.Identify(),
		VaultLength: v.Length(),
		ZoneTable:   zt.Identify(),
		ZoneCount:   len(zt.Zones()),
	}

	// Every zone's bounds check is independent of every other's (zone.Parse
	// already rejected a malformed table before we get here, so CRC/boot-
	// signature validity is settled; what's left is per-zone arithmetic with
	// no shared state), so run them concurrently via errgroup rather than a
	// plain loop.
	var g errgroup.Group
	var mu sync.Mutex
	for _, z := range zt.Zones() {
		z := z
		g.Go(func() error {
			failure := checkZoneBounds(z, v.Length())
			if failure != "" {
				mu.Lock()
				report.ZoneFailures = append(report.ZoneFailures, failure)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info("validated integrity", "vault_type", report.VaultType, "zone_count", report.ZoneCount, "failures", len(report.ZoneFailures))
	return report, nil
}

func checkZoneBounds(z model.Zone, vaultLength uint64) string {
	if z.Length == 0 {
		return fmt.Sprintf("zone %d: zero length", z.Index)
	}
	end, err := safeAdd(z.Offset, z.Length)
	if err != nil || end > vaultLength {
		return fmt.Sprintf("zone %d: bounds [%d, %d) exceed vault length %d", z.Index, z.Offset, end, vaultLength)
	}
	return ""
}

func safeAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, coreerr.LimitExceededf("orchestration: zone bounds overflow")
	}
	return sum, nil
}

// Report is the result of Analyze: the opened vault's identity, its
// zone table, and per-zone territory detection.
type Report struct {
	Path        string
	VaultType   string
	VaultLength uint64
	ZoneTable   string
	Zones       []ZoneReport
	Duration    time.Duration
}

// Analyze runs the full pipeline: open the vault, parse its zone table,
// and detect a territory inside each zone. Zones are dispatched to a
// bounded goroutine pool, but each zone's work holds vaultMu for its
// whole duration, so zones are processed one at a time.
// ctx cancels the pipeline between bounded steps; no leaf decoder call
// below this function ever observes ctx directly.
func Analyze(ctx context.Context, path string, cfg vault.Config) (*Report, error) {
	start := time.Now()
	log.InfoContext(ctx, "starting analysis", "path", path)

	v, err := OpenVault(path, cfg)
	if err != nil {
		return nil, err
	}
	defer v.Close()

	base, err := v.Stream()
	if err != nil {
		return nil, err
	}

	zt, err := zone.Parse(base, 512)
	if err != nil {
		return nil, err
	}
	zones := zt.Zones()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// vaultMu serializes every touch of v across goroutines: several
	// Vault implementations keep shared, mutable decode state behind
	// Stream() (e01's single-entry chunk cache, aff4's one archive
	// handle) that a second concurrent reader would corrupt, so
	// "independent Stream()" is only safe for the vault tiers with no
	// such cache (Raw, VHD fixed). The goroutine pool below still
	// bounds and structures the fan-out; the mutex just keeps the
	// actual vault I/O single-flight.
	var vaultMu sync.Mutex

	results := make([]ZoneReport, len(zones))
	p := pool.New().WithMaxGoroutines(runtime.NumCPU())
	for i, z := range zones {
		i, z := i, z
		p.Go(func() {
			results[i] = analyzeZone(v, &vaultMu, z)
		})
	}
	p.Wait()

	report := &Report{
		Path:        path,
		VaultType:   v.Identify(),
		VaultLength: v.Length(),
		ZoneTable:   zt.Identify(),
		Zones:       results,
		Duration:    time.Since(start),
	}

	log.InfoContext(ctx, "analysis complete",
		"path", path, "vault_type", report.VaultType, "zone_count", len(zones), "duration_ms", report.Duration.Milliseconds())
	return report, nil
}

func analyzeZone(v vault.Vault, vaultMu *sync.Mutex, z model.Zone) ZoneReport {
	vaultMu.Lock()
	defer vaultMu.Unlock()

	s, err := v.Stream()
	if err != nil {
		return ZoneReport{Zone: z, Err: err}
	}
	w, err := zone.Window(s, z)
	if err != nil {
		return ZoneReport{Zone: z, Err: err}
	}

	t, err := territory.Detect(w)
	if err != nil {
		return ZoneReport{Zone: z, Err: err}
	}

	label, _ := t.Label()
	return ZoneReport{Zone: z, TerritoryType: t.Identify(), Label: label}
}
