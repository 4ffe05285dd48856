package eagle

// Unit factors applied on top of the device multiplier/divisor pair.
const (
	// The demand formula yields kilowatts; points store watts.
	wattsPerKilowatt = 1000.0

	// Summation counters are watt-hours after multiplier/divisor; the
	// extra /1000 converts to kWh. Omitting it inflates stored energy
	// by three to six orders of magnitude.
	kilowattHoursPerWattHour = 1.0 / 1000.0
)

// Scale applies the device multiplier/divisor pair and a unit factor to
// a raw counter. ok is false when the divisor is zero, in which case
// the derived field is unavailable and must not be stored.
func Scale(raw, multiplier, divisor int64, factor float64) (float64, bool) {
	return scaleFloat(float64(raw), multiplier, divisor, factor)
}

// scaleFloat is Scale for the legacy flat format, whose decimal values
// may carry a fractional part.
func scaleFloat(raw float64, multiplier, divisor int64, factor float64) (float64, bool) {
	if divisor == 0 {
		return 0, false
	}
	return raw * float64(multiplier) / float64(divisor) * factor, true
}
