package patient

import (
	"time"

	"github.com/google/uuid"
)

// Recognized status values. Status is caller-supplied and stored verbatim;
// the service never derives it from the numeric vitals.
const (
	StatusNormal = "NORMAL"
	StatusAlert  = "ALERT"
)

// ValidStatus reports whether s is one of the recognized status values.
func ValidStatus(s string) bool {
	return s == StatusNormal || s == StatusAlert
}

// Vitals groups the six vital-sign fields. The group is only ever replaced
// as a whole; readers see either the pre-update or post-update snapshot,
// never a mix.
type Vitals struct {
	HeartRate         int     `json:"heartRate"`
	SpO2              float64 `json:"spo2"`
	SystolicPressure  int     `json:"systolicPressure"`
	DiastolicPressure int     `json:"diastolicPressure"`
	Temperature       float64 `json:"temperature"`
	RespiratoryRate   float64 `json:"respiratoryRate"`
}

// Patient is the registry's record for one monitored patient. PII fields are
// held as ciphertext blobs; plaintext is never persisted.
type Patient struct {
	ID                  uuid.UUID `json:"id"`
	Code                string    `json:"patientId"` // business key, e.g. PAC001
	EncryptedFullName   string    `json:"-"`
	EncryptedNationalID string    `json:"-"`
	Vitals              Vitals    `json:"vitals"`
	Status              string    `json:"status"`
	Timestamp           time.Time `json:"timestamp"`
}

// Observation is the transient ingest command. Vital fields are pointers so
// that absent fields are distinguishable from zero readings during
// validation. The raw timestamp tolerates multiple textual forms.
type Observation struct {
	PatientID         string   `json:"patientId"`
	Timestamp         string   `json:"timestamp"`
	HeartRate         *int     `json:"heartRate"`
	SpO2              *float64 `json:"spo2"`
	SystolicPressure  *int     `json:"systolicPressure"`
	DiastolicPressure *int     `json:"diastolicPressure"`
	Temperature       *float64 `json:"temperature"`
	RespiratoryRate   *float64 `json:"respiratoryRate"`
	Status            string   `json:"status"`
}

// Event mirrors the updated patient snapshot pushed to stream subscribers.
// Vitals are not PII and are never redacted; the shape is identical for
// every subscriber.
type Event struct {
	ID                uuid.UUID `json:"id"`
	PatientID         string    `json:"patientId"`
	HeartRate         int       `json:"heartRate"`
	SpO2              float64   `json:"spo2"`
	SystolicPressure  int       `json:"systolicPressure"`
	DiastolicPressure int       `json:"diastolicPressure"`
	Temperature       float64   `json:"temperature"`
	RespiratoryRate   float64   `json:"respiratoryRate"`
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewEvent builds the broadcast event for an updated record.
func NewEvent(p *Patient) Event {
	return Event{
		ID:                p.ID,
		PatientID:         p.Code,
		HeartRate:         p.Vitals.HeartRate,
		SpO2:              p.Vitals.SpO2,
		SystolicPressure:  p.Vitals.SystolicPressure,
		DiastolicPressure: p.Vitals.DiastolicPressure,
		Temperature:       p.Vitals.Temperature,
		RespiratoryRate:   p.Vitals.RespiratoryRate,
		Status:            p.Status,
		Timestamp:         p.Timestamp,
	}
}

// View is the outward, role-projected representation of a Patient.
// DisplayName carries either the decrypted full name (elevated viewers) or
// the redacted form.
type View struct {
	ID                uuid.UUID `json:"id"`
	PatientID         string    `json:"patientId"`
	DisplayName       string    `json:"displayName"`
	HeartRate         int       `json:"heartRate"`
	SpO2              float64   `json:"spo2"`
	SystolicPressure  int       `json:"systolicPressure"`
	DiastolicPressure int       `json:"diastolicPressure"`
	Temperature       float64   `json:"temperature"`
	RespiratoryRate   float64   `json:"respiratoryRate"`
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
}
