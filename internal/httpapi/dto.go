package httpapi

import (
	"github.com/go-playground/validator/v10"

	"pickasso/internal/domain"
)

// CommandRequest is a manual command from the dashboard buttons.
type CommandRequest struct {
	Type    string         `json:"type" validate:"required,command_type"`
	Payload map[string]any `json:"payload"`
}

type PositionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// StatusRequest replaces the whole robot snapshot.
type StatusRequest struct {
	Position        PositionRequest `json:"position"`
	State           string          `json:"state" validate:"required,max=64"`
	Battery         *int            `json:"battery" validate:"required,min=0,max=100"`
	Errors          []string        `json:"errors" validate:"omitempty,dive,max=256"`
	IsConnected     *bool           `json:"isConnected" validate:"required"`
	CurrentDecision *string         `json:"currentDecision" validate:"omitempty,max=256"`
	CurrentReason   *string         `json:"currentReason" validate:"omitempty,max=256"`
}

func (r StatusRequest) toDomain() domain.RobotStatusSnapshot {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return domain.RobotStatusSnapshot{
		Position:        domain.Position{X: r.Position.X, Y: r.Position.Y, Z: r.Position.Z},
		State:           r.State,
		Battery:         *r.Battery,
		Errors:          errs,
		IsConnected:     *r.IsConnected,
		CurrentDecision: r.CurrentDecision,
		CurrentReason:   r.CurrentReason,
	}
}

// relayMessage is one frame from the browser recognizer.
type relayMessage struct {
	Type  string `json:"type"`
	Final bool   `json:"final"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

// NewValidator returns a validator that also knows the closed command set.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("command_type", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParseCommandType(fl.Field().String())
		return ok
	})
	return v
}
