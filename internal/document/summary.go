package document

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NotFound is the sentinel written for any field the source document does
// not contain. Fields are never omitted or left null.
const NotFound = "Not found in report"

// RiskLevel is the underwriting risk classification.
type RiskLevel string

const (
	RiskHigh    RiskLevel = "HIGH"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskLow     RiskLevel = "LOW"
	RiskUnknown RiskLevel = "UNKNOWN"

	// RiskError is only ever written to FAILED audit rows.
	RiskError RiskLevel = "ERROR"
)

// Valid reports whether r is one of the four summary risk levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskHigh, RiskMedium, RiskLow, RiskUnknown:
		return true
	}
	return false
}

// Confidence is the model's self-reported confidence in the classification.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Condition status values.
const (
	StatusActive   = "active"
	StatusManaged  = "managed"
	StatusResolved = "resolved"
)

// Medication compliance values.
const (
	ComplianceCompliant    = "compliant"
	ComplianceNonCompliant = "non-compliant"
	ComplianceUnknown      = "unknown"
)

// RequiredLabs are always present in LabValues, filled with NotFound when
// the document has no value for them.
var RequiredLabs = []string{"HbA1c", "GFR", "LVEF", "LDL"}

var (
	tobaccoValues = map[string]bool{"current": true, "former": true, "never": true, "unknown": true}
	alcoholValues = map[string]bool{"none": true, "moderate": true, "heavy": true, "unknown": true}
)

// Condition is a diagnosed condition extracted from the document.
type Condition struct {
	Name      string `json:"name"`
	OnsetDate string `json:"onset_date"`
	Status    string `json:"status"`
}

// Medication is a current prescription extracted from the document.
type Medication struct {
	Name       string `json:"name"`
	Dosage     string `json:"dosage"`
	Compliance string `json:"compliance"`
}

// Surgery is a surgical procedure extracted from the document.
type Surgery struct {
	Procedure string `json:"procedure"`
	Date      string `json:"date"`
	Outcome   string `json:"outcome"`
}

// Lifestyle captures tobacco, alcohol and hazardous-activity flags.
type Lifestyle struct {
	Tobacco             string   `json:"tobacco"`
	Alcohol             string   `json:"alcohol"`
	HazardousActivities []string `json:"hazardous_activities"`
}

// Summary is the structured underwriting summary persisted for a document.
// Error and RawResponse are set only on degraded summaries produced when the
// model output could not be parsed.
type Summary struct {
	PatientID        string            `json:"patient_id"`
	ProcessingID     string            `json:"processing_id"`
	RiskLevel        RiskLevel         `json:"risk_level"`
	RiskFactors      []string          `json:"risk_factors"`
	Conditions       []Condition       `json:"conditions"`
	Medications      []Medication      `json:"medications"`
	Surgeries        []Surgery         `json:"surgeries"`
	Lifestyle        Lifestyle         `json:"lifestyle_flags"`
	LabValues        map[string]string `json:"lab_values"`
	UnderwriterNotes string            `json:"underwriter_notes"`
	Confidence       Confidence        `json:"confidence_score"`
	ModelUsed        string            `json:"model_used"`
	OriginalDocument string            `json:"original_document,omitempty"`
	GeneratedAt      string            `json:"generated_at,omitempty"`
	Error            string            `json:"error,omitempty"`
	RawResponse      string            `json:"raw_response,omitempty"`
}

// Degraded reports whether the summary is a flagged fallback artifact.
func (s *Summary) Degraded() bool {
	return s.Error != ""
}

// maxRawResponse bounds the raw model output kept on a degraded summary.
const maxRawResponse = 1000

// NewDegradedSummary builds the flagged artifact written when the model
// response is not valid JSON. It still satisfies every schema invariant.
func NewDegradedSummary(reason, raw string) *Summary {
	s := &Summary{
		RiskLevel:   RiskUnknown,
		Error:       reason,
		RawResponse: TruncateRunes(raw, maxRawResponse),
	}
	if s.RawResponse == "" {
		s.RawResponse = "No response"
	}
	s.Normalize()
	return s
}

// Normalize enforces the summary schema on data that came from the model:
// unknown enum values collapse to their "unknown" member, missing scalars
// become NotFound, nil collections become empty, and every required lab key
// is present. It is idempotent.
func (s *Summary) Normalize() {
	if !s.RiskLevel.Valid() {
		s.RiskLevel = RiskUnknown
	}
	s.PatientID = orNotFound(s.PatientID)
	s.UnderwriterNotes = orNotFound(s.UnderwriterNotes)

	switch Confidence(strings.ToUpper(string(s.Confidence))) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		s.Confidence = Confidence(strings.ToUpper(string(s.Confidence)))
	default:
		s.Confidence = ConfidenceLow
	}

	if s.RiskFactors == nil {
		s.RiskFactors = []string{}
	}
	if s.Conditions == nil {
		s.Conditions = []Condition{}
	}
	for i := range s.Conditions {
		c := &s.Conditions[i]
		c.Name = orNotFound(c.Name)
		c.OnsetDate = orNotFound(c.OnsetDate)
		switch strings.ToLower(strings.TrimSpace(c.Status)) {
		case StatusActive, StatusManaged, StatusResolved:
			c.Status = strings.ToLower(strings.TrimSpace(c.Status))
		default:
			c.Status = NotFound
		}
	}

	if s.Medications == nil {
		s.Medications = []Medication{}
	}
	for i := range s.Medications {
		m := &s.Medications[i]
		m.Name = orNotFound(m.Name)
		m.Dosage = orNotFound(m.Dosage)
		switch strings.ToLower(strings.TrimSpace(m.Compliance)) {
		case ComplianceCompliant, ComplianceNonCompliant:
			m.Compliance = strings.ToLower(strings.TrimSpace(m.Compliance))
		default:
			m.Compliance = ComplianceUnknown
		}
	}

	if s.Surgeries == nil {
		s.Surgeries = []Surgery{}
	}
	for i := range s.Surgeries {
		sg := &s.Surgeries[i]
		sg.Procedure = orNotFound(sg.Procedure)
		sg.Date = orNotFound(sg.Date)
		sg.Outcome = orNotFound(sg.Outcome)
	}

	s.Lifestyle.Tobacco = enumOrUnknown(s.Lifestyle.Tobacco, tobaccoValues)
	s.Lifestyle.Alcohol = enumOrUnknown(s.Lifestyle.Alcohol, alcoholValues)
	if s.Lifestyle.HazardousActivities == nil {
		s.Lifestyle.HazardousActivities = []string{}
	}

	if s.LabValues == nil {
		s.LabValues = make(map[string]string, len(RequiredLabs))
	}
	for k, v := range s.LabValues {
		s.LabValues[k] = orNotFound(v)
	}
	for _, lab := range RequiredLabs {
		if _, ok := s.LabValues[lab]; !ok {
			s.LabValues[lab] = NotFound
		}
	}
}

// ParseSummary decodes a model JSON object into a normalized Summary. It
// tolerates the looser shapes models produce: conditions and medications as
// plain strings, lab values as numbers or nulls, and lowercase enums.
func ParseSummary(data []byte) (*Summary, error) {
	var raw struct {
		PatientID        any               `json:"patient_id"`
		RiskLevel        string            `json:"risk_level"`
		RiskFactors      []any             `json:"risk_factors"`
		Conditions       []json.RawMessage `json:"conditions"`
		Medications      []json.RawMessage `json:"medications"`
		Surgeries        []json.RawMessage `json:"surgeries"`
		Lifestyle        *struct {
			Tobacco             any   `json:"tobacco"`
			Alcohol             any   `json:"alcohol"`
			HazardousActivities []any `json:"hazardous_activities"`
		} `json:"lifestyle_flags"`
		LabValues        map[string]any `json:"lab_values"`
		UnderwriterNotes any            `json:"underwriter_notes"`
		Confidence       any            `json:"confidence_score"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}

	s := &Summary{
		PatientID:        scalar(raw.PatientID),
		RiskLevel:        RiskLevel(strings.ToUpper(strings.TrimSpace(raw.RiskLevel))),
		RiskFactors:      stringList(raw.RiskFactors),
		UnderwriterNotes: scalar(raw.UnderwriterNotes),
		Confidence:       Confidence(scalar(raw.Confidence)),
		LabValues:        make(map[string]string, len(raw.LabValues)),
	}

	for _, msg := range raw.Conditions {
		var c Condition
		if name, ok := asString(msg); ok {
			c.Name = name
		} else if err := json.Unmarshal(msg, &c); err != nil {
			return nil, fmt.Errorf("decode condition: %w", err)
		}
		s.Conditions = append(s.Conditions, c)
	}
	for _, msg := range raw.Medications {
		var m Medication
		if name, ok := asString(msg); ok {
			m.Name = name
		} else if err := json.Unmarshal(msg, &m); err != nil {
			return nil, fmt.Errorf("decode medication: %w", err)
		}
		s.Medications = append(s.Medications, m)
	}
	for _, msg := range raw.Surgeries {
		var sg Surgery
		if proc, ok := asString(msg); ok {
			sg.Procedure = proc
		} else if err := json.Unmarshal(msg, &sg); err != nil {
			return nil, fmt.Errorf("decode surgery: %w", err)
		}
		s.Surgeries = append(s.Surgeries, sg)
	}
	if raw.Lifestyle != nil {
		s.Lifestyle = Lifestyle{
			Tobacco:             scalar(raw.Lifestyle.Tobacco),
			Alcohol:             scalar(raw.Lifestyle.Alcohol),
			HazardousActivities: stringList(raw.Lifestyle.HazardousActivities),
		}
	}
	for k, v := range raw.LabValues {
		s.LabValues[k] = scalar(v)
	}

	s.Normalize()
	return s, nil
}

// TruncateRunes returns at most n runes of s.
func TruncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orNotFound(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "null") || strings.EqualFold(v, "not found") {
		return NotFound
	}
	return v
}

func enumOrUnknown(v string, allowed map[string]bool) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if allowed[v] {
		return v
	}
	return "unknown"
}

func asString(msg json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return "", false
	}
	return s, true
}

// scalar renders a decoded JSON scalar as a string; nil becomes "".
func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func stringList(vs []any) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if s := strings.TrimSpace(scalar(v)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
