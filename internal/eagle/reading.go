package eagle

import "time"

// MessageType identifies which cluster of the device schema a reading
// came from. The set of converted field keys is fixed per type.
type MessageType int

const (
	Unknown MessageType = iota
	InstantaneousDemand
	CurrentSummation
	PriceCluster
	TimeCluster
	NetworkInfo
	MessageCluster
	BlockPriceDetail
)

// String returns the snake_case tag value written to the store.
func (t MessageType) String() string {
	switch t {
	case InstantaneousDemand:
		return "instantaneous_demand"
	case CurrentSummation:
		return "current_summation"
	case PriceCluster:
		return "price_cluster"
	case TimeCluster:
		return "time_cluster"
	case NetworkInfo:
		return "network_info"
	case MessageCluster:
		return "message_cluster"
	case BlockPriceDetail:
		return "block_price_detail"
	default:
		return "unknown"
	}
}

// Converted field keys. Each message type produces only its own keys.
const (
	FieldPowerW             = "power_w"
	FieldEnergyDeliveredKWh = "energy_delivered_kwh"
	FieldEnergyReceivedKWh  = "energy_received_kwh"
	FieldPricePerKWh        = "price_per_kwh"
)

// RawMessage is one inbound payload before parsing.
type RawMessage struct {
	Body        []byte
	ContentType string // declared Content-Type header, may be empty
	Source      string // client address, for log context only
}

// Reading is the format-agnostic result of parsing one device message.
//
// RawFields carries unconverted field values for diagnostics. Converted
// carries physical quantities keyed by the Field* constants; a reading
// with Type Unknown always has an empty Converted map.
type Reading struct {
	DeviceID  string
	MeterID   string
	Type      MessageType
	Timestamp time.Time
	RawFields map[string]string
	Converted map[string]float64
}
