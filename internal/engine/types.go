package engine

import (
	"fmt"
	"strings"
	"time"
)

// Severity ranks how serious a finding is.
type Severity int

const (
	SeverityUnspecified Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unspecified"
	}
}

// ParseSeverity converts a severity name into a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityUnspecified, fmt.Errorf("unknown severity %q", s)
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText also accepts an empty or "unspecified" name as the zero value.
func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "", "unspecified":
		*s = SeverityUnspecified
		return nil
	}
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ViolationType names the detector family a violation came from.
type ViolationType string

const (
	ViolationUbuntu  ViolationType = "ubuntu"
	ViolationBias    ViolationType = "bias"
	ViolationPrivacy ViolationType = "privacy"
	ViolationHarm    ViolationType = "harm"
)

// BiasType classifies demographic bias.
type BiasType string

const (
	BiasGender        BiasType = "gender"
	BiasRace          BiasType = "race"
	BiasAge           BiasType = "age"
	BiasReligion      BiasType = "religion"
	BiasDisability    BiasType = "disability"
	BiasSocioeconomic BiasType = "socioeconomic"
	BiasNationality   BiasType = "nationality"
)

// AllBiasTypes lists every bias type in reporting order.
var AllBiasTypes = []BiasType{
	BiasGender, BiasRace, BiasAge, BiasReligion, BiasDisability, BiasSocioeconomic, BiasNationality,
}

// PIIType classifies personal data.
type PIIType string

const (
	PIIEmail       PIIType = "email"
	PIIPhone       PIIType = "phone"
	PIISSN         PIIType = "ssn"
	PIIAddress     PIIType = "address"
	PIIName        PIIType = "name"
	PIICreditCard  PIIType = "credit_card"
	PIIIPAddress   PIIType = "ip_address"
	PIIDateOfBirth PIIType = "date_of_birth"
)

// AllPIITypes lists every PII type.
var AllPIITypes = []PIIType{
	PIIEmail, PIIPhone, PIISSN, PIIAddress, PIIName, PIICreditCard, PIIIPAddress, PIIDateOfBirth,
}

// HarmType classifies harmful content.
type HarmType string

const (
	HarmViolence         HarmType = "violence"
	HarmHateSpeech       HarmType = "hate_speech"
	HarmSelfHarm         HarmType = "self_harm"
	HarmIllegalActivity  HarmType = "illegal_activity"
	HarmMisinformation   HarmType = "misinformation"
	HarmExploitation     HarmType = "exploitation"
	HarmHarassment       HarmType = "harassment"
	HarmDangerousContent HarmType = "dangerous_content"
)

// AllHarmTypes lists every harm type in evaluation order.
var AllHarmTypes = []HarmType{
	HarmViolence, HarmHateSpeech, HarmSelfHarm, HarmIllegalActivity,
	HarmMisinformation, HarmExploitation, HarmHarassment, HarmDangerousContent,
}

// Location is a half-open byte range [Start, End) into the text that was scanned.
type Location struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ValidationResult is the base shape every detector reports.
type ValidationResult struct {
	IsValid     bool     `json:"is_valid"`
	Violations  []string `json:"violations"`
	Score       float64  `json:"score"`
	Suggestions []string `json:"suggestions"`
}

// UbuntuValidationResult adds the three principle sub-scores.
type UbuntuValidationResult struct {
	ValidationResult
	CollectiveBenefit float64 `json:"collective_benefit"`
	KnowledgeSharing  float64 `json:"knowledge_sharing"`
	InclusiveDesign   float64 `json:"inclusive_design"`
}

// BiasScore is one bias finding.
type BiasScore struct {
	Type       BiasType `json:"type"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"`
	Context    string   `json:"context"`
	Location   Location `json:"location"`
}

// BiasReport is the bias detector's output.
type BiasReport struct {
	HasBias           bool        `json:"has_bias"`
	BiasTypes         []BiasScore `json:"bias_types"`
	OverallSeverity   Severity    `json:"overall_severity,omitempty"`
	MitigatedOutput   string      `json:"mitigated_output,omitempty"`
	MitigationApplied bool        `json:"mitigation_applied"`
}

// PIIMatch is one personal-data span. StartIndex and EndIndex are byte offsets.
type PIIMatch struct {
	Type       PIIType `json:"type"`
	Value      string  `json:"value"`
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	Confidence float64 `json:"confidence"`

	// Replacement is the text that took the span's place in FilteredOutput.
	Replacement string `json:"-"`
}

// FilterResult is the privacy filter's output.
type FilterResult struct {
	HasPII         bool       `json:"has_pii"`
	Matches        []PIIMatch `json:"matches"`
	FilteredOutput string     `json:"filtered_output"`
	RedactionCount int        `json:"redaction_count"`
}

// HarmAssessment is the harm detector's output.
type HarmAssessment struct {
	IsHarmful   bool       `json:"is_harmful"`
	HarmTypes   []HarmType `json:"harm_types"`
	Severity    float64    `json:"severity"`
	Explanation string     `json:"explanation"`
	Confidence  float64    `json:"confidence"`
}

// Violation is the normalized record of one policy breach.
type Violation struct {
	Type        ViolationType `json:"type"`
	Severity    Severity      `json:"severity"`
	Description string        `json:"description"`
	Suggestion  string        `json:"suggestion"`
	Location    *Location     `json:"location,omitempty"`

	// Malfunction marks a violation raised because a detector could not run,
	// as opposed to a policy rejection.
	Malfunction bool `json:"malfunction,omitempty"`
}

// RequestContext carries optional caller identity through a validation call.
type RequestContext struct {
	UserID    string `json:"user_id,omitempty"`
	Tier      string `json:"tier,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Metadata holds every detector's full output. It is always fully populated:
// disabled or degraded detectors report their maximal compliant value.
type Metadata struct {
	UbuntuValidation UbuntuValidationResult `json:"ubuntu_validation"`
	BiasDetection    BiasReport             `json:"bias_detection"`
	PrivacyFilter    FilterResult           `json:"privacy_filter"`
	HarmPrevention   HarmAssessment         `json:"harm_prevention"`
	Degraded         []string               `json:"degraded,omitempty"`
	Context          *RequestContext        `json:"context,omitempty"`
}

// Result is the single verdict of one validation call.
type Result struct {
	IsValid          bool        `json:"is_valid"`
	ValidatedOutput  string      `json:"validated_output"`
	Violations       []Violation `json:"violations"`
	ComplianceScore  float64     `json:"compliance_score"`
	Timestamp        time.Time   `json:"timestamp"`
	Metadata         Metadata    `json:"metadata"`
	ProcessingTimeMs float64     `json:"processing_time_ms"`
}

// AuditLog is the durable record of one validation call.
type AuditLog struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id"`
	Query            string      `json:"query"`
	OriginalOutput   string      `json:"original_output"`
	ValidatedOutput  string      `json:"validated_output"`
	Violations       []Violation `json:"violations"`
	ComplianceScore  float64     `json:"compliance_score"`
	IsValid          bool        `json:"is_valid"`
	Timestamp        time.Time   `json:"timestamp"`
	Tier             string      `json:"tier"`
	ProcessingTimeMs int64       `json:"processing_time_ms"`
}
