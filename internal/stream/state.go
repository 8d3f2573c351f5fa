package stream

type Status int

const (
	Disconnected Status = iota
	Connecting
	Streaming
	ReconnectWaiting
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case ReconnectWaiting:
		return "reconnect_waiting"
	default:
		return "disconnected"
	}
}

// State is a snapshot of the connection. LastEventID is the resumption
// cursor; Attempts counts connection attempts since Initialize.
type State struct {
	Status      Status `json:"-"`
	StatusName  string `json:"status"`
	LastEventID string `json:"last_event_id,omitempty"`
	Attempts    int    `json:"attempts"`
	LastError   string `json:"last_error,omitempty"`
}
