package zone

import (
	"github.com/forensiccore/diskvault/internal/model"
	"github.com/forensiccore/diskvault/internal/stream"
	"github.com/forensiccore/diskvault/internal/zone/gpt"
	"github.com/forensiccore/diskvault/internal/zone/mbr"
)

// direct is the single-Zone fallback ZoneTable used when no partition
// table is detected: the whole vault projected as one zone.
type direct struct {
	zone model.Zone
}

func (d *direct) Identify() string      { return "Direct" }
func (d *direct) Zones() []model.Zone   { return []model.Zone{d.zone} }

// Parse tries GPT (gated on protective-MBR detection), then bare MBR,
// then falls back to Direct, per the normative factory order. sectorSize
// defaults to 512 when the caller has no better source for it.
func Parse(s stream.Stream, sectorSize uint32) (ZoneTable, error) {
	if sectorSize == 0 {
		sectorSize = 512
	}

	if s.Length() >= 2*uint64(sectorSize) {
		if mt, err := mbr.Parse(s, sectorSize); err == nil && mt.IsProtective() {
			gt, err := gpt.Parse(s, sectorSize)
			if err != nil {
				// A protective MBR promises a GPT header; a GPT that
				// fails to validate (bad CRC, bad signature) is a
				// corrupt image, not a plain-MBR one.
				return nil, err
			}
			return gt, nil
		}
	}

	if s.Length() >= uint64(sectorSize) {
		if mt, err := mbr.Parse(s, sectorSize); err == nil {
			return mt, nil
		}
	}

	return &direct{zone: model.Zone{Index: 0, Offset: 0, Length: s.Length(), ZoneType: "Direct"}}, nil
}
