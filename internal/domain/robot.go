package domain

const (
	RobotStateIdle        = "IDLE"
	DefaultDecision       = "Waiting for commands"
	DefaultDecisionReason = "System initialized"
	DefaultBatteryLevel   = 100
)

// Position is the robot location in workspace coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// RobotStatusSnapshot is the singleton robot status record.
type RobotStatusSnapshot struct {
	Position        Position `json:"position"`
	State           string   `json:"state"`
	Battery         int      `json:"battery"`
	Errors          []string `json:"errors"`
	IsConnected     bool     `json:"isConnected"`
	CurrentDecision *string  `json:"currentDecision"`
	CurrentReason   *string  `json:"currentReason"`
}

// DefaultSnapshot is written once when no snapshot exists.
func DefaultSnapshot() RobotStatusSnapshot {
	decision := DefaultDecision
	reason := DefaultDecisionReason
	return RobotStatusSnapshot{
		Position:        Position{},
		State:           RobotStateIdle,
		Battery:         DefaultBatteryLevel,
		Errors:          []string{},
		IsConnected:     true,
		CurrentDecision: &decision,
		CurrentReason:   &reason,
	}
}

// Clone returns a deep copy so callers never share mutable fields.
func (s RobotStatusSnapshot) Clone() RobotStatusSnapshot {
	out := s
	out.Errors = append([]string{}, s.Errors...)
	if s.CurrentDecision != nil {
		v := *s.CurrentDecision
		out.CurrentDecision = &v
	}
	if s.CurrentReason != nil {
		v := *s.CurrentReason
		out.CurrentReason = &v
	}
	return out
}

// SnapshotPatch is the subset of fields a dispatch mutates.
type SnapshotPatch struct {
	State           string
	CurrentDecision string
	CurrentReason   string
}

// Apply writes the patch fields and leaves everything else untouched.
func (s *RobotStatusSnapshot) Apply(patch SnapshotPatch) {
	decision := patch.CurrentDecision
	reason := patch.CurrentReason
	s.State = patch.State
	s.CurrentDecision = &decision
	s.CurrentReason = &reason
}
