package relay

// Identity classes attached at admission time. The identity backend may
// return further class strings (for example "driver"); these constants cover
// the classes the relay itself assigns or treats specially.
const (
	ClassUser       = "user"
	ClassDeveloper  = "developer"
	ClassLogsViewer = "logs_viewer"
)

// Identity is the result of credential validation: an opaque identity id and
// a coarse class string. It is attached to a connection at admission time and
// never changes for the connection's lifetime.
type Identity struct {
	ID   string
	Type string
}

// PersonalRoom returns the room key that addresses this identity directly,
// or "" when the identity carries no id.
func (id Identity) PersonalRoom() string {
	if id.ID == "" {
		return ""
	}
	return id.Type + ":" + id.ID
}
