package analysis

import (
	"fmt"

	"github.com/trafficai/violation-reporter/internal/geo"
)

const violationCatalogue = `Look for these traffic violations:

1. RED LIGHT VIOLATION: a vehicle entering or crossing an intersection while its signal is red. High severity.
2. WRONG WAY: a vehicle travelling against the permitted direction on a one-way road or against the flow of traffic. Signs include one-way signs, arrows painted on the road, and a vehicle facing the opposite way to all or most other vehicles. When one vehicle clearly moves against everyone else, report Wrong Way even without a visible sign. High severity.
3. NO HELMET: a motorcycle or scooter rider without a helmet.
4. STOP SIGN VIOLATION: a vehicle not coming to a full stop at a stop sign.
5. ILLEGAL PARKING: a vehicle parked in a no-parking zone, blocking traffic, or in a restricted area.
6. PHONE USAGE WHILE DRIVING: a driver handling a mobile phone while driving.

Check signal colours, road signs, lane markings and vehicle orientation carefully. Several vehicles and several violations may be present; report each one separately.`

const answerInstructions = `For every violation give the exact violation type name, the vehicle (type, colour, a plausible license plate), the severity (Low, Medium, High), a confidence score from 0.0 to 1.0 and a short reason. Also give an overall summary and the environment (time of day, weather, road type).

Answer in JSON following the provided schema. When nothing is found set isViolation to false and violations to an empty array.`

var imagePrompt = "Analyze this image.\n\n" + violationCatalogue + "\n\n" + answerInstructions

func framesPrompt(n int) string {
	return fmt.Sprintf("Analyze these %d frames, taken in order from one video. "+
		"Movement between frames matters: track vehicles against signals and against the general flow of traffic. "+
		"For the environment use the values most representative across all frames.\n\n%s\n\n%s",
		n, violationCatalogue, answerInstructions)
}

func stationsPrompt(at geo.Coordinate) string {
	return fmt.Sprintf(`List the %d police stations closest to latitude %.6f, longitude %.6f.

Only include real, operational police stations that accept traffic violation reports, not private security. Give each station's official name and its precise latitude and longitude in decimal degrees. Sort by distance from the given point, closest first.

Answer in JSON following the provided schema.`, maxStations, at.Latitude, at.Longitude)
}
