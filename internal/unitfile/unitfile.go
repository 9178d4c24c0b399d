// Package unitfile supplements the service-manager boundary: it defines
// the on-disk shape of a service unit and the read path that loads a
// whole unit directory off the abstract block transport.
// Start/stop/restart/reload/enable/disable/status remain the external
// service manager's own business; this package only gets units off the
// disk and onto the wire for it.
//
// The system this is modeled on reads a flat, packed binary unit table
// from disk. Nothing in the core's non-goals excludes a friendlier
// format, so this is rendered as small YAML documents instead, the
// idiomatic choice given the existing gopkg.in/yaml.v3 dependency.
package unitfile

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/yaml.v3"

	"kestrel/internal/virtio"
)

// Unit describes one service entry.
type Unit struct {
	Name      string   `yaml:"name"`
	ExecStart string   `yaml:"exec_start"`
	After     []string `yaml:"after,omitempty"`
	Enabled   bool     `yaml:"enabled"`
}

// headerSector is sector 0 of the unit directory: a 4-byte
// little-endian length of the YAML payload that follows in the
// subsequent sectors.
const headerSector = 0
const payloadStartSector = 1

// LoadAll reads the unit directory off bt starting at sector 0 (a
// length header) and decodes the YAML payload that follows into a list
// of Unit, the read half of the collaborator-defined load-all syscall.
func LoadAll(bt *virtio.BlockTransport, policy virtio.SpinPolicy) ([]Unit, error) {
	header, err := bt.ReadSector(headerSector, policy)
	if err != nil {
		return nil, fmt.Errorf("unitfile: reading header sector: %w", err)
	}
	if len(header) < 4 {
		return nil, fmt.Errorf("unitfile: header sector too short")
	}
	length := binary.LittleEndian.Uint32(header[:4])

	numSectors := int((length + virtio.SectorSize - 1) / virtio.SectorSize)
	payload := make([]byte, 0, numSectors*virtio.SectorSize)
	for i := 0; i < numSectors; i++ {
		sector, err := bt.ReadSector(uint64(payloadStartSector+i), policy)
		if err != nil {
			return nil, fmt.Errorf("unitfile: reading payload sector %d: %w", i, err)
		}
		payload = append(payload, sector...)
	}
	payload = payload[:length]

	var units []Unit
	if err := yaml.Unmarshal(payload, &units); err != nil {
		return nil, fmt.Errorf("unitfile: decoding unit list: %w", err)
	}
	return units, nil
}

// StoreAll encodes units as YAML and writes them to bt starting at
// sector 0, for use by whatever provisions the disk image (and by
// tests exercising the read path above without a separate image
// builder).
func StoreAll(bt *virtio.BlockTransport, units []Unit, policy virtio.SpinPolicy) error {
	payload, err := yaml.Marshal(units)
	if err != nil {
		return fmt.Errorf("unitfile: encoding unit list: %w", err)
	}

	header := make([]byte, virtio.SectorSize)
	binary.LittleEndian.PutUint32(header[:4], uint32(len(payload)))
	if err := bt.WriteSector(headerSector, header, policy); err != nil {
		return fmt.Errorf("unitfile: writing header sector: %w", err)
	}

	numSectors := (len(payload) + virtio.SectorSize - 1) / virtio.SectorSize
	padded := make([]byte, numSectors*virtio.SectorSize)
	copy(padded, payload)
	for i := 0; i < numSectors; i++ {
		sector := padded[i*virtio.SectorSize : (i+1)*virtio.SectorSize]
		if err := bt.WriteSector(uint64(payloadStartSector+i), sector, policy); err != nil {
			return fmt.Errorf("unitfile: writing payload sector %d: %w", i, err)
		}
	}
	return nil
}
