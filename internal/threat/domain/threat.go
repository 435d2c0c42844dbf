package domain

import "time"

// ThreatType classifies what the engine detected.
type ThreatType string

const (
	TypeBruteForce         ThreatType = "BRUTE_FORCE"
	TypeCredentialStuffing ThreatType = "CREDENTIAL_STUFFING"
	TypeAnomalySpike       ThreatType = "ANOMALY_SPIKE"
)

// Severity grades a threat. The engine only assigns HIGH and CRITICAL;
// operators may downgrade when triaging.
type Severity string

const (
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Status is the triage lifecycle of a threat. ACTIVE and FLAGGED are open:
// new evidence folds into the existing record. RESOLVED and BANNED are
// terminal: a later incident from the same ip opens a fresh record.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusFlagged  Status = "FLAGGED"
	StatusResolved Status = "RESOLVED"
	StatusBanned   Status = "BANNED"
)

// Open reports whether new evidence should fold into a threat in this status.
func (s Status) Open() bool {
	return s == StatusActive || s == StatusFlagged
}

// SecurityThreat is one detected incident, deduplicated per (ip, type) while
// open.
type SecurityThreat struct {
	ID            string
	IPAddress     string
	Type          ThreatType
	Severity      Severity
	Status        Status
	EvidenceCount int
	FirstDetected time.Time
	LastDetected  time.Time
	Metadata      map[string]any
}

// SecurityBaseline is the rolling summary of normal failure volume, one row
// per category, upserted by recalculation.
type SecurityBaseline struct {
	Category              string
	AvgFailuresPerHour    float64
	StdDevFailuresPerHour float64
	SampleSize            int
	AnomalyThreshold      float64
	LastUpdated           time.Time
}

// CategoryGlobal is the single baseline category the engine maintains today.
const CategoryGlobal = "global"
