// Package id provides unique identifier generation for reports.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Prefix starts every report ID.
const Prefix = "REP-"

// Generate creates a new unique report ID.
// Format: REP-<uuid v4, upper case>
// Example: REP-3F2504E0-4F89-41D3-9A0C-0305E82C3301
func Generate() string {
	return Prefix + strings.ToUpper(uuid.NewString())
}
