package cmd

import (
	"strconv"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/forensiccore/diskvault/internal/orchestration"
	"github.com/forensiccore/diskvault/internal/territory"
	"github.com/forensiccore/diskvault/internal/vault"
	"github.com/forensiccore/diskvault/internal/zone"
)

// splitZoneIndexAndPath separates the optional zone-index argument from
// the trailing path-bearing arguments of ls/extract, e.g. [path] or
// [zoneIndex, path] or [zoneIndex, path, outFile]. When more than one
// argument is present and the first parses as a non-negative integer, it
// is taken as the zone index; zone 0 is assumed otherwise.
func splitZoneIndexAndPath(rest []string) (zoneIndex int, tail []string) {
	if len(rest) > 1 {
		if n, err := strconv.Atoi(rest[0]); err == nil && n >= 0 {
			return n, rest[1:]
		}
	}
	return 0, rest
}

// openTerritory opens image, selects zone zoneIndex from its partition
// table, and detects the filesystem inside it, returning both the
// Vault (so the caller can Close it) and the resolved Territory.
func openTerritory(image string, zoneIndex int) (vault.Vault, territory.Territory, error) {
	v, err := orchestration.OpenVault(image, vault.Config{UseMmap: appConfig.DefaultUseMmap})
	if err != nil {
		return nil, nil, err
	}

	s, err := v.Stream()
	if err != nil {
		v.Close()
		return nil, nil, err
	}

	zt, err := zone.Parse(s, 512)
	if err != nil {
		v.Close()
		return nil, nil, err
	}

	zones := zt.Zones()
	if zoneIndex < 0 || zoneIndex >= len(zones) {
		v.Close()
		return nil, nil, coreerr.NotFoundf("cmd: zone index %d out of range (table has %d zones)", zoneIndex, len(zones))
	}

	w, err := zone.Window(s, zones[zoneIndex])
	if err != nil {
		v.Close()
		return nil, nil, err
	}

	t, err := orchestration.DetectTerritory(w)
	if err != nil {
		v.Close()
		return nil, nil, err
	}
	return v, t, nil
}
