// Package dispatch delivers lighting and heating commands to devices.
//
// A device resolved to the bus transport receives a plain "on" or "off"
// on actuators/{id}/led. A device with a request/response address receives
// PUT {address}/settings with {"ls":0|1}. Override changes are also
// announced, retained, on devices/{id}/override.
package dispatch
