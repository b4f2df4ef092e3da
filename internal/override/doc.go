// Package override manages manual overrides that take precedence over
// automatic control.
//
// Each device has at most one override. Timed classes (1h, 4h, 12h, 24h)
// expire; permanent overrides last until cleared; setting class disabled
// clears. Expiry is checked on read, so there is no expiry timer.
//
// The Manager's table is authoritative for the running process. The store
// is written best-effort and reloaded on startup.
package override
