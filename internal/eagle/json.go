package eagle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// parseJSON handles the two JSON wire formats. The uploader envelope is
// recognized structurally by its "body" array; anything else is treated
// as the legacy flat object.
func (p *Parser) parseJSON(body []byte, now time.Time) ([]Reading, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal json: %w", err)
	}

	if items, ok := payload["body"].([]any); ok {
		return p.parseNested(payload, items, now), nil
	}
	return p.parseFlat(payload, now), nil
}

// parseNested decodes the uploader envelope:
//
//	{"deviceGuid": ..., "body": [{"dataType": ..., "data": {...}, "timestamp": <ms>}, ...]}
//
// Each body item becomes its own reading. Values arrive already in
// physical units (kW, kWh, currency), so no multiplier/divisor applies.
func (p *Parser) parseNested(payload map[string]any, items []any, now time.Time) []Reading {
	deviceID := jsonString(payload, "deviceGuid", "unknown")

	var readings []Reading
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			p.logger.Warn("ignoring malformed body item", "device_id", deviceID)
			continue
		}
		dataType := jsonString(item, "dataType", "")
		data, _ := item["data"].(map[string]any)

		// An item's own timestamp (ms since epoch) overrides the
		// envelope's receive time.
		ts := now
		if ms, ok := jsonNumber(item, "timestamp"); ok {
			ts = NormalizeTimestamp(time.UnixMilli(int64(ms)).UTC(), now)
		}

		reading := Reading{
			DeviceID:  deviceID,
			Timestamp: ts,
			RawFields: map[string]string{},
			Converted: map[string]float64{},
		}

		switch dataType {
		case "InstantaneousDemand":
			reading.Type = InstantaneousDemand
			if kw, ok := jsonNumber(data, "demand"); ok {
				reading.Converted[FieldPowerW] = kw * wattsPerKilowatt
			}
		case "CurrentSummation":
			reading.Type = CurrentSummation
			if kwh, ok := jsonNumber(data, "summationDelivered"); ok {
				reading.Converted[FieldEnergyDeliveredKWh] = kwh
			}
			if kwh, ok := jsonNumber(data, "summationReceived"); ok {
				reading.Converted[FieldEnergyReceivedKWh] = kwh
			}
		case "Price":
			reading.Type = PriceCluster
			if price, ok := jsonNumber(data, "price"); ok {
				reading.Converted[FieldPricePerKWh] = price
			}
			if tier, ok := jsonNumber(data, "PriceTier"); ok {
				reading.RawFields["price_tier"] = strconv.FormatFloat(tier, 'f', -1, 64)
			}
			if label := jsonString(data, "PriceRateLabel", ""); label != "" {
				reading.RawFields["price_rate_label"] = label
			}
		default:
			p.logger.Warn("ignoring unrecognized body data type",
				"data_type", dataType, "device_id", deviceID)
			continue
		}

		readings = append(readings, reading)
	}
	return readings
}

// parseFlat decodes the legacy flat object. Values are decimal, not
// hex, but the multiplier/divisor scaling is the same as the XML path.
// Demand and summation groups can coexist in one message; each present
// group yields its own reading.
func (p *Parser) parseFlat(payload map[string]any, now time.Time) []Reading {
	deviceID := stripHexPrefix(jsonString(payload, "DeviceMacId", "unknown"))
	meterID := stripHexPrefix(jsonString(payload, "MeterMacId", ""))

	ts := now
	if s := jsonString(payload, "TimeStamp", ""); s != "" {
		ts = NormalizeTimestamp(ParseTimestamp(s, now), now)
	} else if v, ok := jsonNumber(payload, "TimeStamp"); ok {
		ts = NormalizeTimestamp(deviceEpoch.Add(time.Duration(int64(v))*time.Second), now)
	}

	multiplier := int64(1)
	if v, ok := jsonNumber(payload, "Multiplier"); ok {
		multiplier = int64(v)
	}
	divisor := int64(1)
	if v, ok := jsonNumber(payload, "Divisor"); ok {
		divisor = int64(v)
	}

	newReading := func(t MessageType) Reading {
		return Reading{
			DeviceID:  deviceID,
			MeterID:   meterID,
			Type:      t,
			Timestamp: ts,
			RawFields: map[string]string{},
			Converted: map[string]float64{},
		}
	}

	var readings []Reading

	if demand, ok := jsonNumber(payload, "Demand"); ok {
		reading := newReading(InstantaneousDemand)
		reading.RawFields["demand"] = strconv.FormatFloat(demand, 'f', -1, 64)
		if w, scaled := scaleFloat(demand, multiplier, divisor, wattsPerKilowatt); scaled {
			reading.Converted[FieldPowerW] = w
		}
		readings = append(readings, reading)
	}

	delivered, hasDelivered := jsonNumber(payload, "CurrentSummationDelivered")
	received, hasReceived := jsonNumber(payload, "CurrentSummationReceived")
	if hasDelivered || hasReceived {
		reading := newReading(CurrentSummation)
		if hasDelivered {
			reading.RawFields["summation_delivered"] = strconv.FormatFloat(delivered, 'f', -1, 64)
			if kwh, scaled := scaleFloat(delivered, multiplier, divisor, kilowattHoursPerWattHour); scaled {
				reading.Converted[FieldEnergyDeliveredKWh] = kwh
			}
		}
		if hasReceived {
			reading.RawFields["summation_received"] = strconv.FormatFloat(received, 'f', -1, 64)
			if kwh, scaled := scaleFloat(received, multiplier, divisor, kilowattHoursPerWattHour); scaled {
				reading.Converted[FieldEnergyReceivedKWh] = kwh
			}
		}
		readings = append(readings, reading)
	}

	if len(readings) == 0 {
		p.logger.Warn("flat json payload carried no recognized fields",
			"device_id", deviceID)
	}
	return readings
}

// jsonString returns a string value, or def when absent or not a string.
func jsonString(m map[string]any, key, def string) string {
	if m == nil {
		return def
	}
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return def
}

// jsonNumber returns a numeric value. Devices are inconsistent about
// quoting numbers, so numeric strings are accepted too.
func jsonNumber(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
