package domain

import (
	"strings"
	"time"
)

// CommandType is the closed vocabulary the robot understands.
type CommandType string

const (
	CommandMove      CommandType = "MOVE"
	CommandGrab      CommandType = "GRAB"
	CommandPlace     CommandType = "PLACE"
	CommandStop      CommandType = "STOP"
	CommandHome      CommandType = "HOME"
	CommandCalibrate CommandType = "CALIBRATE"
	CommandReset     CommandType = "RESET"
)

// CommandStatusCompleted is the only terminal status currently produced.
const CommandStatusCompleted = "completed"

const genericReason = "Command received"

var commandReasons = map[CommandType]string{
	CommandMove:      "Path is clear for movement",
	CommandGrab:      "Object detected and verified safe to grab",
	CommandPlace:     "Designated area is clear for placement",
	CommandStop:      "Emergency stop triggered",
	CommandHome:      "Returning to charging station",
	CommandCalibrate: "Initiating sensor calibration",
	CommandReset:     "Clearing error state",
}

// CommandTypes lists the vocabulary in a stable order.
func CommandTypes() []CommandType {
	return []CommandType{
		CommandMove,
		CommandGrab,
		CommandPlace,
		CommandStop,
		CommandHome,
		CommandCalibrate,
		CommandReset,
	}
}

// ParseCommandType accepts any casing of a known command.
func ParseCommandType(value string) (CommandType, bool) {
	candidate := CommandType(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := commandReasons[candidate]; ok {
		return candidate, true
	}
	return "", false
}

// ReasonFor returns the fixed decision sentence for a command type.
func ReasonFor(commandType CommandType) string {
	if reason, ok := commandReasons[commandType]; ok {
		return reason
	}
	return genericReason
}

// CommandRecord is one immutable entry in the command log.
type CommandRecord struct {
	ID        string         `json:"id"`
	Type      CommandType    `json:"type"`
	Payload   map[string]any `json:"payload"`
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Reason    string         `json:"reason"`
	Success   bool           `json:"success"`
}

// IsManual reports whether the record came from a manual button press.
func (r CommandRecord) IsManual() bool {
	manual, _ := r.Payload["manual"].(bool)
	return manual
}

// VocabularyEntry documents one voice command for operators.
type VocabularyEntry struct {
	Type        CommandType `json:"type"`
	Keyword     string      `json:"keyword"`
	Description string      `json:"description"`
	Examples    []string    `json:"examples,omitempty"`
	ManualOnly  bool        `json:"manualOnly"`
}

// Vocabulary returns the operator-facing command matrix.
func Vocabulary() []VocabularyEntry {
	return []VocabularyEntry{
		{
			Type:        CommandMove,
			Keyword:     "move",
			Description: "Controls robot movement in different directions or to specific positions",
			Examples:    []string{"move forward", "move left", "move to position one"},
		},
		{
			Type:        CommandGrab,
			Keyword:     "grab",
			Description: "Commands the robot to pick up items",
			Examples:    []string{"grab item", "grab from bin", "grab the red block"},
		},
		{
			Type:        CommandPlace,
			Keyword:     "place",
			Description: "Commands the robot to place held items",
			Examples:    []string{"place here", "place in bin", "place on conveyor"},
		},
		{
			Type:        CommandStop,
			Keyword:     "stop",
			Description: "Immediately stops all robot operations",
			Examples:    []string{"stop now", "stop moving", "emergency stop"},
		},
		{
			Type:        CommandHome,
			Keyword:     "home",
			Description: "Returns the robot to its home position",
			Examples:    []string{"go home", "return home", "home position"},
		},
		{
			Type:        CommandCalibrate,
			Description: "Recalibrates the robot sensors",
			ManualOnly:  true,
		},
		{
			Type:        CommandReset,
			Description: "Clears the robot error state",
			ManualOnly:  true,
		},
	}
}
