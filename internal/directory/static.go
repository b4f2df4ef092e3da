package directory

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type staticFile struct {
	Devices []StaticEntry `yaml:"devices"`
}

// LoadStatic reads the fallback table. An empty path or missing file
// yields an empty table.
//
// Format:
//
//	devices:
//	  - id: node1
//	    address: "fd00::212:4b00:1"
//	    transport: rr
//	  - id: led-lobby
//	    transport: bus
func LoadStatic(path string) (map[string]StaticEntry, error) {
	entries := make(map[string]StaticEntry)
	if path == "" {
		return entries, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // Operator-supplied path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, nil
		}
		return nil, fmt.Errorf("reading static table: %w", err)
	}

	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStatic, err)
	}

	for i, e := range f.Devices {
		if e.DeviceID == "" {
			return nil, fmt.Errorf("%w: entry %d has no id", ErrInvalidStatic, i)
		}
		if _, dup := entries[e.DeviceID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidStatic, e.DeviceID)
		}
		switch e.Transport {
		case "":
			e.Transport = TransportRR
		case TransportRR, TransportBus:
		default:
			return nil, fmt.Errorf("%w: %q has unknown transport %q", ErrInvalidStatic, e.DeviceID, e.Transport)
		}
		if e.Transport == TransportRR && e.Address == "" {
			return nil, fmt.Errorf("%w: %q needs an address", ErrInvalidStatic, e.DeviceID)
		}
		entries[e.DeviceID] = e
	}
	return entries, nil
}
