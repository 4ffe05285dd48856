package eagle

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrParseFailure marks a payload that is neither valid XML nor valid
// JSON. The caller acknowledges these with a benign response; the
// device retries aggressively on anything that looks like an error.
var ErrParseFailure = errors.New("payload is neither valid XML nor valid JSON")

// Parser turns raw device payloads into Readings. One Parser handles
// all three wire formats; format detection is per message.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a Parser. A nil logger falls back to the default.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Parse decodes one payload. The nested JSON envelope can carry several
// items, so a single message may yield multiple readings. An empty
// slice with a nil error means the payload parsed but carried nothing
// storable.
//
// Detection order: an XML content-type hint or a leading '<' selects
// XML; anything else is tried as JSON. A structurally broken XML
// payload gets one JSON attempt before the message is declared
// unparseable.
func (p *Parser) Parse(raw RawMessage) ([]Reading, error) {
	body := bytes.TrimSpace(raw.Body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty payload: %w", ErrParseFailure)
	}

	now := time.Now().UTC()

	looksXML := strings.Contains(strings.ToLower(raw.ContentType), "xml") || body[0] == '<'
	if looksXML {
		readings, err := p.parseXML(body, now)
		if err == nil {
			return readings, nil
		}
		p.logger.Warn("xml parse failed, retrying as json",
			"error", err, "source", raw.Source)
	}

	readings, err := p.parseJSON(body, now)
	if err != nil {
		p.logger.Warn("unparseable payload",
			"error", err, "source", raw.Source, "bytes", len(raw.Body))
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	return readings, nil
}

// xmlElement is a generic DOM node. The device schema is shallow and
// loosely ordered, so the parser walks a tree instead of binding
// per-message structs.
type xmlElement struct {
	XMLName  xml.Name
	Children []xmlElement `xml:",any"`
	Text     string       `xml:",chardata"`
}

// messageTypeForTag maps recognized XML tags to message types.
func messageTypeForTag(tag string) (MessageType, bool) {
	switch tag {
	case "InstantaneousDemand":
		return InstantaneousDemand, true
	case "CurrentSummation", "CurrentSummationDelivered":
		return CurrentSummation, true
	case "PriceCluster":
		return PriceCluster, true
	case "TimeCluster":
		return TimeCluster, true
	case "NetworkInfo":
		return NetworkInfo, true
	case "MessageCluster":
		return MessageCluster, true
	case "BlockPriceDetail":
		return BlockPriceDetail, true
	default:
		return Unknown, false
	}
}

func (p *Parser) parseXML(body []byte, now time.Time) ([]Reading, error) {
	var root xmlElement
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("unmarshal xml: %w", err)
	}

	// The root is either a recognized message tag or a wrapper (the
	// device wraps fragments in <rainforest>) with the message one
	// level down.
	msg := &root
	msgType, ok := messageTypeForTag(root.XMLName.Local)
	if !ok {
		for i := range root.Children {
			if t, found := messageTypeForTag(root.Children[i].XMLName.Local); found {
				msg = &root.Children[i]
				msgType = t
				ok = true
				break
			}
		}
	}

	reading := Reading{
		DeviceID:  stripHexPrefix(findText(&root, "DeviceMacId")),
		MeterID:   stripHexPrefix(findText(&root, "MeterMacId")),
		Type:      msgType,
		RawFields: map[string]string{},
		Converted: map[string]float64{},
	}

	if !ok {
		// Unrecognized roots parse successfully but are log-only.
		p.logger.Warn("unknown xml message type", "tag", root.XMLName.Local)
		reading.Type = Unknown
		reading.Timestamp = now
		return []Reading{reading}, nil
	}

	ts := findText(&root, "TimeStamp")
	reading.Timestamp = NormalizeTimestamp(ParseTimestamp(ts, now), now)

	switch msgType {
	case InstantaneousDemand:
		demand := childTextDefault(msg, "Demand", "")
		multiplier := childTextDefault(msg, "Multiplier", "1")
		divisor := childTextDefault(msg, "Divisor", "1")
		reading.RawFields["demand"] = demand
		reading.RawFields["multiplier"] = multiplier
		reading.RawFields["divisor"] = divisor
		if w, ok := Scale(ParseHex(demand), ParseHex(multiplier), ParseHex(divisor), wattsPerKilowatt); ok {
			reading.Converted[FieldPowerW] = w
		}

	case CurrentSummation:
		delivered := childTextDefault(msg, "SummationDelivered", "")
		received := childTextDefault(msg, "SummationReceived", "")
		multiplier := childTextDefault(msg, "Multiplier", "1")
		divisor := childTextDefault(msg, "Divisor", "1")
		mult := ParseHex(multiplier)
		div := ParseHex(divisor)
		reading.RawFields["multiplier"] = multiplier
		reading.RawFields["divisor"] = divisor
		if delivered != "" {
			reading.RawFields["summation_delivered"] = delivered
			if kwh, ok := Scale(ParseHex(delivered), mult, div, kilowattHoursPerWattHour); ok {
				reading.Converted[FieldEnergyDeliveredKWh] = kwh
			}
		}
		if received != "" {
			reading.RawFields["summation_received"] = received
			if kwh, ok := Scale(ParseHex(received), mult, div, kilowattHoursPerWattHour); ok {
				reading.Converted[FieldEnergyReceivedKWh] = kwh
			}
		}

	case PriceCluster:
		price := childTextDefault(msg, "Price", "")
		trailing := childTextDefault(msg, "TrailingDigits", "2")
		reading.RawFields["price"] = price
		reading.RawFields["trailing_digits"] = trailing
		if price != "" {
			divisor := powerOfTen(ParseNumeric(trailing))
			if v, ok := Scale(ParseNumeric(price), 1, divisor, 1); ok {
				reading.Converted[FieldPricePerKWh] = v
			}
		}

	case TimeCluster:
		copyRawField(msg, &reading, "UTCTime", "utc_time")
		copyRawField(msg, &reading, "LocalTime", "local_time")

	case NetworkInfo:
		copyRawField(msg, &reading, "LinkStrength", "link_strength")
		copyRawField(msg, &reading, "Status", "status")

	case MessageCluster:
		copyRawField(msg, &reading, "Text", "message_text")
		copyRawField(msg, &reading, "Id", "message_id")

	case BlockPriceDetail:
		copyRawField(msg, &reading, "CurrentBlock", "current_block")
		copyRawField(msg, &reading, "CurrentPrice", "current_price")
	}

	return []Reading{reading}, nil
}

// findText walks the tree depth-first for the first element named tag
// and returns its trimmed text, or "" if absent.
func findText(el *xmlElement, tag string) string {
	if el.XMLName.Local == tag {
		return strings.TrimSpace(el.Text)
	}
	for i := range el.Children {
		if v := findText(&el.Children[i], tag); v != "" {
			return v
		}
	}
	return ""
}

// childTextDefault returns the trimmed text of a direct child, or def.
func childTextDefault(el *xmlElement, tag, def string) string {
	for i := range el.Children {
		if el.Children[i].XMLName.Local == tag {
			if v := strings.TrimSpace(el.Children[i].Text); v != "" {
				return v
			}
			return def
		}
	}
	return def
}

func copyRawField(el *xmlElement, reading *Reading, tag, key string) {
	if v := childTextDefault(el, tag, ""); v != "" {
		reading.RawFields[key] = v
	}
}

// powerOfTen avoids importing math for small integer exponents.
func powerOfTen(digits int64) int64 {
	v := int64(1)
	for i := int64(0); i < digits; i++ {
		v *= 10
	}
	return v
}
