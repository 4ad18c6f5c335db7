// Package entity holds the structured lead record captured during a sales
// call and the logic for extracting and merging it from model output.
//
// A Record accumulates monotonically: fields are only ever overwritten by a
// newly extracted non-empty value and are never cleared by a later extraction
// that omits them. Requirements grow as a de-duplicated, order-preserving
// union across extractions.
package entity

import (
	"encoding/json"
	"regexp"
	"strings"
)

// RequiredFields are the fields that must all be present before end-of-call
// actions (calendar booking, lead creation) run.
var RequiredFields = []string{"name", "email", "company_name", "meeting_date", "meeting_time"}

// Record is the per-call lead record. Scalar fields are pointers so that an
// absent value is distinguishable from an empty one in model output.
type Record struct {
	Name         *string  `json:"name"`
	Email        *string  `json:"email"`
	CompanyName  *string  `json:"company_name"`
	Requirements []string `json:"requirements"`
	MeetingDate  *string  `json:"meeting_date"`
	MeetingTime  *string  `json:"meeting_time"`
	Industry     *string  `json:"industry"`
}

// Merge applies delta onto r under the monotonic policy: a scalar field is
// overwritten only when the incoming value is non-nil and non-empty, and
// requirements are unioned preserving first-seen order. A nil delta is a
// no-op.
func (r *Record) Merge(delta *Record) {
	if delta == nil {
		return
	}
	mergeScalar(&r.Name, delta.Name)
	mergeScalar(&r.Email, delta.Email)
	mergeScalar(&r.CompanyName, delta.CompanyName)
	mergeScalar(&r.MeetingDate, delta.MeetingDate)
	mergeScalar(&r.MeetingTime, delta.MeetingTime)
	mergeScalar(&r.Industry, delta.Industry)

	for _, req := range delta.Requirements {
		req = strings.TrimSpace(req)
		if req == "" || containsFold(r.Requirements, req) {
			continue
		}
		r.Requirements = append(r.Requirements, req)
	}
}

func mergeScalar(dst **string, src *string) {
	if src == nil {
		return
	}
	v := strings.TrimSpace(*src)
	if v == "" {
		return
	}
	*dst = &v
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of r, used to snapshot state for audit entries.
func (r *Record) Clone() Record {
	out := Record{}
	out.Merge(r)
	return out
}

// Missing returns the required fields that are still unset on r.
func (r *Record) Missing() []string {
	var missing []string
	for _, f := range RequiredFields {
		if !r.has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

func (r *Record) has(field string) bool {
	var v *string
	switch field {
	case "name":
		v = r.Name
	case "email":
		v = r.Email
	case "company_name":
		v = r.CompanyName
	case "meeting_date":
		v = r.MeetingDate
	case "meeting_time":
		v = r.MeetingTime
	case "industry":
		v = r.Industry
	default:
		return false
	}
	return v != nil && strings.TrimSpace(*v) != ""
}

// Snapshot serialises r as JSON for inclusion in a model prompt. It never
// fails: the record contains only strings and string slices.
func (r *Record) Snapshot() string {
	b, err := json.Marshal(r)
	if err != nil {
		return "{}"
	}
	return string(b)
}

var emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// SanitizeEmail trims raw and validates it against a local@domain.tld shape.
// It returns the cleaned address and true, or "" and false when the input is
// not a plausible email.
func SanitizeEmail(raw string) (string, bool) {
	cleaned := strings.TrimSpace(raw)
	if !emailShape.MatchString(cleaned) {
		return "", false
	}
	return cleaned, true
}
