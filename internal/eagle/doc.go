// Package eagle decodes telemetry pushed by Rainforest EAGLE energy
// monitors.
//
// The device speaks three wire formats, all handled by one Parser:
//   - hex-XML fragments (Demand, Multiplier, Divisor as 0x-prefixed hex)
//   - the "uploader" JSON envelope with a body array of typed items
//   - a legacy flat JSON object with decimal values
//
// Conventions:
//   - Power: watts (power_w)
//   - Energy: kilowatt-hours (energy_delivered_kwh, energy_received_kwh)
//   - Timestamps: the device counts seconds since 2000-01-01T00:00:00Z
package eagle
