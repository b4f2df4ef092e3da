// Package directory maps device ids to reachable addresses.
//
// Addresses come from three sources. A device may report its own address
// in telemetry; such an address always wins. Discovery lists the border
// router's neighbors and asks each for its id; those mappings are cached in
// memory and SQLite and go stale after the validity window. A static YAML
// table supplies the last fallback and is the only source that can select
// the bus transport.
package directory
