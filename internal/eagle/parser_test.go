package eagle

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

const demandXML = `<InstantaneousDemand>
  <DeviceMacId>0xd8d5b9000000</DeviceMacId>
  <MeterMacId>0x00135003001234</MeterMacId>
  <TimeStamp>CURRENT</TimeStamp>
  <Demand>0x00000010</Demand>
  <Multiplier>0x00000001</Multiplier>
  <Divisor>0x00000001</Divisor>
</InstantaneousDemand>`

func TestParseXMLInstantaneousDemand(t *testing.T) {
	p := NewParser(nil)

	readings, err := p.Parse(RawMessage{Body: []byte(demandXML), ContentType: "application/xml"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("got %d readings, want 1", len(readings))
	}

	r := readings[0]
	if r.Type != InstantaneousDemand {
		t.Errorf("Type = %v, want %v", r.Type, InstantaneousDemand)
	}
	if r.DeviceID != "d8d5b9000000" {
		t.Errorf("DeviceID = %q, want %q", r.DeviceID, "d8d5b9000000")
	}
	if r.MeterID != "00135003001234" {
		t.Errorf("MeterID = %q, want %q", r.MeterID, "00135003001234")
	}
	if got := r.Converted[FieldPowerW]; got != 16000 {
		t.Errorf("power_w = %v, want 16000", got)
	}
	if time.Since(r.Timestamp) > 5*time.Second {
		t.Errorf("Timestamp = %v, want close to now", r.Timestamp)
	}
}

func TestParseXMLWrappedSummation(t *testing.T) {
	body := `<rainforest macId="0xd8d5b9000000" timestamp="1700000000s">
  <CurrentSummationDelivered>
    <DeviceMacId>0xd8d5b9000000</DeviceMacId>
    <MeterMacId>0x00135003001234</MeterMacId>
    <TimeStamp>CURRENT</TimeStamp>
    <SummationDelivered>0x000f4240</SummationDelivered>
    <SummationReceived>0x00001388</SummationReceived>
    <Multiplier>0x00000001</Multiplier>
    <Divisor>0x000003e8</Divisor>
  </CurrentSummationDelivered>
</rainforest>`

	p := NewParser(nil)
	readings, err := p.Parse(RawMessage{Body: []byte(body)})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("got %d readings, want 1", len(readings))
	}

	r := readings[0]
	if r.Type != CurrentSummation {
		t.Errorf("Type = %v, want %v", r.Type, CurrentSummation)
	}
	// 1000000 / 1000 Wh, then /1000 to kWh
	if got := r.Converted[FieldEnergyDeliveredKWh]; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("energy_delivered_kwh = %v, want 1.0", got)
	}
	// 5000 / 1000 / 1000
	if got := r.Converted[FieldEnergyReceivedKWh]; math.Abs(got-0.005) > 1e-9 {
		t.Errorf("energy_received_kwh = %v, want 0.005", got)
	}
}

func TestParseXMLPriceCluster(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{
			"explicit trailing digits",
			`<PriceCluster>
  <DeviceMacId>0xd8d5b9000000</DeviceMacId>
  <Price>0x000004cd</Price>
  <TrailingDigits>0x03</TrailingDigits>
</PriceCluster>`,
			1.229,
		},
		{
			"default trailing digits",
			`<PriceCluster>
  <DeviceMacId>0xd8d5b9000000</DeviceMacId>
  <Price>0x0c</Price>
</PriceCluster>`,
			0.12,
		},
	}

	p := NewParser(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readings, err := p.Parse(RawMessage{Body: []byte(tt.body)})
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			if len(readings) != 1 {
				t.Fatalf("got %d readings, want 1", len(readings))
			}
			if got := readings[0].Converted[FieldPricePerKWh]; math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("price_per_kwh = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseXMLDeviceTimestamp(t *testing.T) {
	// One hour ago, expressed as hex seconds since the device epoch.
	secs := int64(time.Since(deviceEpoch).Seconds()) - 3600
	body := fmt.Sprintf(`<InstantaneousDemand>
  <DeviceMacId>0xd8d5b9000000</DeviceMacId>
  <TimeStamp>0x%x</TimeStamp>
  <Demand>0x10</Demand>
</InstantaneousDemand>`, secs)

	p := NewParser(nil)
	readings, err := p.Parse(RawMessage{Body: []byte(body)})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	want := deviceEpoch.Add(time.Duration(secs) * time.Second)
	if got := readings[0].Timestamp; !got.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", got, want)
	}
}

func TestParseXMLLogOnlyMessages(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType MessageType
		wantRaw  map[string]string
	}{
		{
			"time cluster",
			`<TimeCluster><DeviceMacId>0xd8d5b9000000</DeviceMacId><UTCTime>0x2e5a1234</UTCTime><LocalTime>0x2e59a234</LocalTime></TimeCluster>`,
			TimeCluster,
			map[string]string{"utc_time": "0x2e5a1234", "local_time": "0x2e59a234"},
		},
		{
			"network info",
			`<NetworkInfo><DeviceMacId>0xd8d5b9000000</DeviceMacId><LinkStrength>0x64</LinkStrength><Status>Connected</Status></NetworkInfo>`,
			NetworkInfo,
			map[string]string{"link_strength": "0x64", "status": "Connected"},
		},
		{
			"message cluster",
			`<MessageCluster><DeviceMacId>0xd8d5b9000000</DeviceMacId><Text>Planned outage</Text><Id>0x01</Id></MessageCluster>`,
			MessageCluster,
			map[string]string{"message_text": "Planned outage", "message_id": "0x01"},
		},
	}

	p := NewParser(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readings, err := p.Parse(RawMessage{Body: []byte(tt.body)})
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			if len(readings) != 1 {
				t.Fatalf("got %d readings, want 1", len(readings))
			}
			r := readings[0]
			if r.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", r.Type, tt.wantType)
			}
			if len(r.Converted) != 0 {
				t.Errorf("Converted = %v, want empty", r.Converted)
			}
			for key, want := range tt.wantRaw {
				if got := r.RawFields[key]; got != want {
					t.Errorf("RawFields[%q] = %q, want %q", key, got, want)
				}
			}
		})
	}
}

func TestParseXMLUnknownRoot(t *testing.T) {
	body := `<rainforest><FutureMessage><DeviceMacId>0xd8d5b9000000</DeviceMacId></FutureMessage></rainforest>`

	p := NewParser(nil)
	readings, err := p.Parse(RawMessage{Body: []byte(body)})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("got %d readings, want 1", len(readings))
	}
	r := readings[0]
	if r.Type != Unknown {
		t.Errorf("Type = %v, want %v", r.Type, Unknown)
	}
	if r.DeviceID != "d8d5b9000000" {
		t.Errorf("DeviceID = %q, want %q", r.DeviceID, "d8d5b9000000")
	}
	if len(r.Converted) != 0 {
		t.Errorf("Converted = %v, want empty", r.Converted)
	}
}

func TestParseXMLZeroDivisor(t *testing.T) {
	body := `<InstantaneousDemand>
  <DeviceMacId>0xd8d5b9000000</DeviceMacId>
  <Demand>0x10</Demand>
  <Multiplier>0x01</Multiplier>
  <Divisor>0x00</Divisor>
</InstantaneousDemand>`

	p := NewParser(nil)
	readings, err := p.Parse(RawMessage{Body: []byte(body)})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if _, present := readings[0].Converted[FieldPowerW]; present {
		t.Error("power_w present despite zero divisor")
	}
	if got := readings[0].RawFields["demand"]; got != "0x10" {
		t.Errorf("raw demand = %q, want %q", got, "0x10")
	}
}

func TestParseFallsBackToJSON(t *testing.T) {
	// Declared XML but actually flat JSON: the parser retries as JSON.
	body := `{"DeviceMacId": "0xd8d5b9000000", "Demand": 16, "Multiplier": 1, "Divisor": 1}`

	p := NewParser(nil)
	readings, err := p.Parse(RawMessage{Body: []byte(body), ContentType: "application/xml"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("got %d readings, want 1", len(readings))
	}
	if got := readings[0].Converted[FieldPowerW]; got != 16000 {
		t.Errorf("power_w = %v, want 16000", got)
	}
}

func TestParseUnparseable(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"whitespace", "   \n\t "},
		{"garbage", "not xml, not json"},
		{"broken xml broken json", "<InstantaneousDemand><Demand>"},
	}

	p := NewParser(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(RawMessage{Body: []byte(tt.body)})
			if !errors.Is(err, ErrParseFailure) {
				t.Errorf("Parse error = %v, want ErrParseFailure", err)
			}
		})
	}
}

// All three wire formats describing the same physical state must agree
// on the converted values.
func TestFormatsAgree(t *testing.T) {
	xmlBody := `<InstantaneousDemand>
  <DeviceMacId>0xd8d5b9000000</DeviceMacId>
  <TimeStamp>CURRENT</TimeStamp>
  <Demand>0x10</Demand>
  <Multiplier>0x01</Multiplier>
  <Divisor>0x3e8</Divisor>
</InstantaneousDemand>`
	flatBody := `{"DeviceMacId": "0xd8d5b9000000", "Demand": 16, "Multiplier": 1, "Divisor": 1000}`
	nestedBody := `{"deviceGuid": "d8d5b9000000", "body": [{"dataType": "InstantaneousDemand", "data": {"demand": 0.016}}]}`

	p := NewParser(nil)
	var values []float64
	for _, body := range []string{xmlBody, flatBody, nestedBody} {
		readings, err := p.Parse(RawMessage{Body: []byte(body)})
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", body, err)
		}
		if len(readings) != 1 {
			t.Fatalf("Parse(%q) yielded %d readings, want 1", body, len(readings))
		}
		values = append(values, readings[0].Converted[FieldPowerW])
	}

	for i, v := range values {
		if math.Abs(v-16.0) > 1e-6 {
			t.Errorf("format %d: power_w = %v, want 16.0", i, v)
		}
	}
}
