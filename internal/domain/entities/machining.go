package entities

import (
	"fmt"
	"strings"

	apperrors "github.com/kzhara/lathemind/backend/pkg/errors"
)

// MachiningType classifies the kind of lathe operation a program performs.
type MachiningType string

const (
	MachiningTypeOuterDiameter MachiningType = "outer_diameter"
	MachiningTypeInnerDiameter MachiningType = "inner_diameter"
	MachiningTypeThreading     MachiningType = "threading"
	MachiningTypeFacing        MachiningType = "facing"
	MachiningTypeGrooving      MachiningType = "grooving"
	MachiningTypeOther         MachiningType = "other"
)

// machiningTypes is the closed variant list used for validation.
var machiningTypes = map[MachiningType]bool{
	MachiningTypeOuterDiameter: true,
	MachiningTypeInnerDiameter: true,
	MachiningTypeThreading:     true,
	MachiningTypeFacing:        true,
	MachiningTypeGrooving:      true,
	MachiningTypeOther:         true,
}

// ParseMachiningType validates a raw string against the known variants.
func ParseMachiningType(raw string) (MachiningType, error) {
	mt := MachiningType(strings.ToLower(strings.TrimSpace(raw)))
	if !machiningTypes[mt] {
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown machining type: %q", raw))
	}
	return mt, nil
}

// IsValid reports whether the machining type is one of the known variants.
func (m MachiningType) IsValid() bool {
	return machiningTypes[m]
}

// MachiningConditions holds the cutting parameters supplied with a
// generation request.
type MachiningConditions struct {
	Material         string  `json:"material"`
	SpindleSpeed     float64 `json:"spindle_speed"` // rpm
	FeedRate         float64 `json:"feed_rate"`     // mm/rev
	DepthOfCut       float64 `json:"depth_of_cut"`  // mm
	Coolant          bool    `json:"coolant"`
	ToolNumber       string  `json:"tool_number"`       // e.g. T0101
	CoordinateSystem string  `json:"coordinate_system"` // e.g. G54
}

// Validate enforces the minimum inputs retrieval depends on: a material and
// at least one of spindle speed / feed rate.
func (c *MachiningConditions) Validate() error {
	if strings.TrimSpace(c.Material) == "" {
		return apperrors.NewValidationError("machining conditions require a material")
	}
	if c.SpindleSpeed <= 0 && c.FeedRate <= 0 {
		return apperrors.NewValidationError("machining conditions require spindle speed or feed rate")
	}
	return nil
}

// NormalizedMaterial returns the material in canonical uppercase form.
func (c *MachiningConditions) NormalizedMaterial() string {
	return strings.ToUpper(strings.TrimSpace(c.Material))
}

// ProcessInfo describes the manufacturing step the generated program belongs to.
type ProcessInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Sequence int    `json:"sequence"`
	Notes    string `json:"notes"`
}
