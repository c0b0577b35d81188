package message

// Operator command actions.
const (
	ActionResendFaulted = "resend_faulted"
	ActionPurge         = "purge"
	ActionInvalidate    = "invalidate"
	ActionRemove        = "remove"
)

// Command is a decoded operator request received over MQTT.
type Command struct {
	Action  string   `json:"action"`
	Type    string   `json:"type"`
	ID      string   `json:"id,omitempty"`
	Targets []string `json:"targets,omitempty"`
}
