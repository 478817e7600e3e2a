package analysis

// Response schemas in the OpenAPI subset accepted by generateContent.

func str(desc string, enum ...string) map[string]any {
	s := map[string]any{"type": "STRING", "description": desc}
	if len(enum) > 0 {
		s["enum"] = enum
	}
	return s
}

func num(desc string) map[string]any {
	return map[string]any{"type": "NUMBER", "description": desc}
}

var violationSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"violationType": str("The type of violation identified for this instance.",
			string(ViolationRedLight), string(ViolationNoHelmet), string(ViolationWrongWay),
			string(ViolationStopSign), string(ViolationIllegalPark), string(ViolationPhoneUsage),
			string(ViolationNone)),
		"vehicleDetails": map[string]any{
			"type":        "OBJECT",
			"description": "The vehicle involved in this violation. Estimates are acceptable.",
			"properties": map[string]any{
				"type":         str("e.g. Car, Motorcycle, Truck"),
				"licensePlate": str("The license plate. Give a plausible value if unreadable."),
				"color":        str("The primary colour of the vehicle."),
				"make":         str("The make of the vehicle. Optional."),
				"model":        str("The model of the vehicle. Optional."),
			},
			"required": []string{"type", "licensePlate", "color"},
		},
		"severity":        str("Severity based on potential danger.", string(SeverityLow), string(SeverityMedium), string(SeverityHigh)),
		"reasoning":       str("A short explanation of why this violation was detected."),
		"confidenceScore": num("Confidence between 0.0 and 1.0."),
	},
	"required": []string{"violationType", "vehicleDetails", "severity", "reasoning", "confidenceScore"},
}

var verdictSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"isViolation": map[string]any{"type": "BOOLEAN", "description": "Whether any traffic violation was detected."},
		"violations": map[string]any{
			"type":        "ARRAY",
			"description": "Every violation found. Empty when there are none.",
			"items":       violationSchema,
		},
		"summaryReasoning": str("A short overall summary of the findings."),
		"environment": map[string]any{
			"type":        "OBJECT",
			"description": "The scene the media shows.",
			"properties": map[string]any{
				"timeOfDay": str("Estimated time of day.", "Day", "Night", "Dusk/Dawn"),
				"weather":   str("Apparent weather.", "Clear", "Rainy", "Foggy", "Overcast", "Unknown"),
				"roadType":  str("Type of road.", "Highway", "City Street", "Intersection", "Residential", "Parking Lot"),
			},
			"required": []string{"timeOfDay", "weather", "roadType"},
		},
	},
	"required": []string{"isViolation", "violations", "summaryReasoning", "environment"},
}

var stationsSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"stations": map[string]any{
			"type":        "ARRAY",
			"description": "Police stations near the given coordinates.",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"name": str("Official name of the police station."),
					"lat":  num("Latitude of the station."),
					"lng":  num("Longitude of the station."),
				},
				"required": []string{"name", "lat", "lng"},
			},
		},
	},
	"required": []string{"stations"},
}
