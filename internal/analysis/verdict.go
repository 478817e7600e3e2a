// Package analysis talks to the hosted vision model that classifies traffic
// violations and looks up nearby police stations.
package analysis

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidVerdict is returned when the model's answer does not satisfy the
// response schema.
var ErrInvalidVerdict = errors.New("analysis: invalid verdict")

// ViolationType names a detectable violation.
type ViolationType string

const (
	ViolationRedLight    ViolationType = "Red Light Violation"
	ViolationNoHelmet    ViolationType = "No Helmet"
	ViolationWrongWay    ViolationType = "Wrong Way"
	ViolationStopSign    ViolationType = "Stop Sign Violation"
	ViolationIllegalPark ViolationType = "Illegal Parking"
	ViolationPhoneUsage  ViolationType = "Phone Usage While Driving"
	ViolationNone        ViolationType = "None"
)

// Severity of a single violation.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// VehicleDetails are the model's best estimate of the vehicle involved.
type VehicleDetails struct {
	Type         string `json:"type" validate:"required"`
	LicensePlate string `json:"licensePlate" validate:"required"`
	Color        string `json:"color" validate:"required"`
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
}

// Violation is one detected occurrence.
type Violation struct {
	ViolationType   ViolationType  `json:"violationType" validate:"required,oneof='Red Light Violation' 'No Helmet' 'Wrong Way' 'Stop Sign Violation' 'Illegal Parking' 'Phone Usage While Driving' 'None'"`
	VehicleDetails  VehicleDetails `json:"vehicleDetails"`
	Severity        Severity       `json:"severity" validate:"required,oneof=Low Medium High"`
	Reasoning       string         `json:"reasoning"`
	ConfidenceScore float64        `json:"confidenceScore" validate:"gte=0,lte=1"`
}

// Environment describes the scene.
type Environment struct {
	TimeOfDay string `json:"timeOfDay" validate:"required,oneof=Day Night Dusk/Dawn"`
	Weather   string `json:"weather" validate:"required,oneof=Clear Rainy Foggy Overcast Unknown"`
	RoadType  string `json:"roadType" validate:"required,oneof=Highway 'City Street' Intersection Residential 'Parking Lot'"`
}

// Verdict is the structured classification of a photo or clip.
type Verdict struct {
	IsViolation      bool        `json:"isViolation"`
	Violations       []Violation `json:"violations" validate:"dive"`
	SummaryReasoning string      `json:"summaryReasoning"`
	Environment      Environment `json:"environment"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the verdict against the response schema.
func (v *Verdict) Validate() error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidVerdict, err)
	}
	return nil
}

// Reported returns the violations other than "None".
func (v *Verdict) Reported() []Violation {
	var out []Violation
	for _, vi := range v.Violations {
		if vi.ViolationType != ViolationNone {
			out = append(out, vi)
		}
	}
	return out
}

// HasViolation reports whether at least one real violation was found.
func (v *Verdict) HasViolation() bool {
	return v.IsViolation && len(v.Reported()) > 0
}

// PoliceStation is a station the model placed near a coordinate.
type PoliceStation struct {
	Name       string  `json:"name" validate:"required"`
	Latitude   float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude  float64 `json:"lng" validate:"gte=-180,lte=180"`
	DistanceKM float64 `json:"distanceKm,omitempty"`
}
