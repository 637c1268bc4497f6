package lifecycle

import (
	"time"

	"github.com/google/uuid"
)

// State follows a controller from installation until it is replaced.
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

// Client is an open client context (a browser tab talking to the front server).
// ControllerVersion is empty until a controller claims it.
type Client struct {
	ID                uuid.UUID `json:"id"`
	ControllerVersion string    `json:"controller_version,omitempty"`
	OpenedAt          time.Time `json:"opened_at"`
}

// Status is a point-in-time view of the host.
type Status struct {
	ActiveVersion  string `json:"active_version,omitempty"`
	ActiveState    State  `json:"active_state,omitempty"`
	WaitingVersion string `json:"waiting_version,omitempty"`
	Clients        int    `json:"clients"`
}
