package types

// Defaults reported when the device does not say otherwise.
const (
	DefaultManufacturer = "Cozify"
	DefaultName         = "Cozify HAN"
	DefaultModel        = "HAN Reader"
)

// Identity is the device metadata fetched once at startup. Empty fields are
// unknown.
type Identity struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model,omitempty"`
	Name         string `json:"name,omitempty"`
	Serial       string `json:"serial,omitempty"`
	MAC          string `json:"mac,omitempty"`
	Firmware     string `json:"firmware,omitempty"`
}

// UnknownIdentity returns the identity used when the device info endpoint is
// absent or fails.
func UnknownIdentity() Identity {
	return Identity{Manufacturer: DefaultManufacturer, Model: DefaultModel, Name: DefaultName}
}

// Known reports whether the device told us anything beyond the defaults.
func (i Identity) Known() bool {
	return i != UnknownIdentity()
}
