// Package bindingproto defines the wire messages of the UI binding surface.
package bindingproto

// Version is the binding protocol version.
const Version = "0.1"

// Group is the binding group the UI registers its values under.
const Group = "BuildingHeightAndFootprint"

// Binding value names.
const (
	StatsText  = "statsText"
	LayoutKind = "layoutKind"
)

// Names lists every binding value in a stable order.
var Names = []string{StatsText, LayoutKind}

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeBindings  = "BINDINGS"
)

// Values are recomputed on every read; nothing is cached between reads.
type Values struct {
	StatsText  string `json:"statsText"`
	LayoutKind string `json:"layoutKind"`
}

// Get returns the named value.
func (v Values) Get(name string) (string, bool) {
	switch name {
	case StatsText:
		return v.StatsText, true
	case LayoutKind:
		return v.LayoutKind, true
	}
	return "", false
}

// Client -> Server. First message on the bindings WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// HTTP response for GET /v1/bindings.
type BootstrapResponse struct {
	ProtocolVersion string `json:"protocol_version"`
	Group           string `json:"group"`
	Seq             uint64 `json:"seq"`
	Values          Values `json:"values"`
}

// Server -> Client. Sent after SUBSCRIBE and whenever the values change.
type BindingsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Group           string `json:"group"`
	Seq             uint64 `json:"seq"`
	Values          Values `json:"values"`
}

// SettingsResponse is returned by the admin settings endpoints.
type SettingsResponse struct {
	HeightUnit           string `json:"height_unit"`
	SeaLevelOffsetMeters int    `json:"sea_level_offset_meters"`
	SeaLevelOffsetFeet   string `json:"sea_level_offset_feet"`
}

// SettingsUpdate is the body of PUT /admin/v1/settings. Absent fields keep their value.
type SettingsUpdate struct {
	HeightUnit           *string `json:"height_unit,omitempty"`
	SeaLevelOffsetMeters *int    `json:"sea_level_offset_meters,omitempty"`
}

// SelectRequest is the body of POST /admin/v1/select. Entity is "index:version", a bare index,
// a scene entity name, or "null". Clear hands selection back to the scene timeline.
type SelectRequest struct {
	Entity string `json:"entity,omitempty"`
	Clear  bool   `json:"clear,omitempty"`
}

type SelectResponse struct {
	Entity string `json:"entity"`
}
