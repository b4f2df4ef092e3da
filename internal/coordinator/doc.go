// Package coordinator is the control API of the room-control engine.
//
// It exposes override, schedule, command and status operations as plain
// method calls, and it is the glue between components: it observes every
// automatic decision for accounting and the journal, and it turns
// override changes into device commands.
package coordinator
