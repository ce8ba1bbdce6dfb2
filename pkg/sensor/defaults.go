package sensor

import (
	"fmt"

	"github.com/raterudder/hanbridge/pkg/schema"
	"github.com/raterudder/hanbridge/pkg/types"
)

// Units.
const (
	UnitWatt        = "W"
	UnitKiloWattHr  = "kWh"
	UnitVolt        = "V"
	UnitAmpere      = "A"
	UnitVar         = "var"
	UnitCentsPerKWh = "c/kWh"
)

// Device and state classes, named after what most home automation sinks
// understand.
const (
	ClassEnergy        = "energy"
	ClassPower         = "power"
	ClassReactivePower = "reactive_power"
	ClassVoltage       = "voltage"
	ClassCurrent       = "current"
	ClassTimestamp     = "timestamp"

	StateMeasurement     = "measurement"
	StateTotalIncreasing = "total_increasing"
)

var phaseNames = []string{"L1", "L2", "L3"}

// Defaults returns the reader table for a HAN bridge at host. Static readers
// are resolved from id here and never change afterwards.
//
// Realtime keys: ic/ec cumulative import/export, p and r are
// [total, L1, L2, L3], u and i are [L1, L2, L3], ts is epoch seconds.
// Configuration keys: e/w are the ethernet/wifi interfaces with e the
// activity flag, n.m the mode and s the ssid; m.f is the main fuse, p the
// fixed price, t the timezone and v the firmware version.
func Defaults(host string, id types.Identity) []Reader {
	rt, cfg := schema.EndpointRealtime, schema.EndpointConfig

	readers := []Reader{
		energy("ic", "Total Power Imported", schema.Keys(rt, "ic")),
		energy("ec", "Total Power Exported", schema.Keys(rt, "ec")),
	}

	readers = append(readers, totalAndPhases("p", "Power", UnitWatt, ClassPower)...)
	readers = append(readers, phases("u", "Voltage", UnitVolt, ClassVoltage)...)
	readers = append(readers, phases("i", "Current", UnitAmpere, ClassCurrent)...)
	readers = append(readers, totalAndPhases("r", "Reactive Power", UnitVar, ClassReactivePower)...)

	readers = append(readers,
		diagnostic(Reader{ID: "conf_v", Name: "Firmware Version", Kind: Text, Path: schema.Keys(cfg, "v")}),
		diagnostic(Reader{ID: "conf_fuse", Name: "Main Fuse Size", Unit: UnitAmpere, Kind: Plain, Path: schema.Keys(cfg, "m", "f")}),
		diagnostic(Reader{ID: "conf_eth_mode", Name: "Ethernet Mode", Kind: Text, Path: schema.Keys(cfg, "e", "n", "m")}),
		diagnostic(Reader{ID: "conf_wifi_ssid", Name: "WiFi SSID", Kind: Text, Path: schema.Keys(cfg, "w", "s")}),
		diagnostic(Reader{ID: "conf_wifi_mode", Name: "WiFi Mode", Kind: Text, Path: schema.Keys(cfg, "w", "n", "m")}),
		diagnostic(Reader{ID: "conf_eth_active", Name: "Ethernet Active", Kind: Flag, Path: schema.Keys(cfg, "e", "e")}),
		diagnostic(Reader{ID: "conf_wifi_active", Name: "WiFi Active", Kind: Flag, Path: schema.Keys(cfg, "w", "e")}),
		diagnostic(Reader{ID: "conf_price", Name: "Fixed Electricity Price", Unit: UnitCentsPerKWh, Kind: Plain, Path: schema.Keys(cfg, "p"), HasDefault: true}),
		diagnostic(Reader{ID: "conf_timezone", Name: "Timezone", Kind: Text, Path: schema.Keys(cfg, "t")}),
	)

	for i, ph := range phaseNames {
		readers = append(readers, Reader{
			ID:          fmt.Sprintf("max_i_%d", i),
			Name:        "Current Max " + ph,
			Unit:        UnitAmpere,
			DeviceClass: ClassCurrent,
			StateClass:  StateMeasurement,
			Kind:        Maximum,
			Path:        schema.Element(rt, "i", i),
			Metric:      fmt.Sprintf("max_i_%d", i),
		})
	}

	readers = append(readers,
		Reader{
			ID:          "peak_p",
			Name:        "Power MAX",
			Unit:        UnitWatt,
			DeviceClass: ClassPower,
			StateClass:  StateMeasurement,
			Kind:        Maximum,
			Path:        schema.Element(rt, "p", 0),
			Metric:      "peak_p",
		},
		diagnostic(Reader{ID: "ts", Name: "Last Update", DeviceClass: ClassTimestamp, Kind: Timestamp, Path: schema.Keys(rt, "ts")}),
		static("mac_address", "MAC Address", id.MAC),
		static("serial_number", "Serial Number", id.Serial),
		static("ip_address", "IP Address", host),
	)

	return readers
}

func energy(key, name string, path schema.FieldPath) Reader {
	return Reader{
		ID:          key,
		Name:        name,
		Unit:        UnitKiloWattHr,
		DeviceClass: ClassEnergy,
		StateClass:  StateTotalIncreasing,
		Kind:        Plain,
		Path:        path,
	}
}

func element(key string, idx int, name, unit, class string) Reader {
	return Reader{
		ID:          fmt.Sprintf("%s_%d", key, idx),
		Name:        name,
		Unit:        unit,
		DeviceClass: class,
		StateClass:  StateMeasurement,
		Kind:        Array,
		Path:        schema.Element(schema.EndpointRealtime, key, idx),
	}
}

// totalAndPhases is for arrays laid out [total, L1, L2, L3].
func totalAndPhases(key, name, unit, class string) []Reader {
	rs := []Reader{element(key, 0, name+" Total", unit, class)}
	for i, ph := range phaseNames {
		rs = append(rs, element(key, i+1, name+" "+ph, unit, class))
	}
	return rs
}

// phases is for arrays laid out [L1, L2, L3].
func phases(key, name, unit, class string) []Reader {
	rs := make([]Reader, 0, len(phaseNames))
	for i, ph := range phaseNames {
		rs = append(rs, element(key, i, name+" "+ph, unit, class))
	}
	return rs
}

func diagnostic(r Reader) Reader {
	r.Diagnostic = true
	return r
}

func static(id, name, value string) Reader {
	r := Reader{ID: id, Name: name, Kind: Static, Diagnostic: true}
	if value != "" {
		r.Value = types.StringValue(value)
	}
	return r
}
