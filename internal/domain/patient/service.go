package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/camelloncase/healthgo/internal/platform/pii"
)

// Broadcaster receives patient update events for fan-out to live
// subscribers. The stream hub satisfies this.
type Broadcaster interface {
	Broadcast(event any)
}

// Service implements patient registration, vitals ingestion, and read
// projections on top of a Repository.
type Service struct {
	repo      Repository
	enc       *pii.EncryptionService
	hub       Broadcaster
	projector *Projector
	logger    zerolog.Logger
}

// NewService wires a patient service. hub may be nil when no live stream is
// attached (migrations, seeding).
func NewService(repo Repository, enc *pii.EncryptionService, hub Broadcaster, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		enc:       enc,
		hub:       hub,
		projector: NewProjector(enc, logger),
		logger:    logger,
	}
}

// RegisterInput carries the identifying fields for a new patient record.
type RegisterInput struct {
	PatientID  string `json:"patientId"`
	FullName   string `json:"fullName"`
	NationalID string `json:"nationalId"`
}

// Register creates a patient with encrypted PII and zeroed vitals. The
// national ID is normalized to bare digits before encryption so lookups and
// masking are format-independent.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Patient, error) {
	code := strings.TrimSpace(in.PatientID)
	fullName := strings.TrimSpace(in.FullName)
	if code == "" {
		return nil, fmt.Errorf("%w: patientId is required", ErrValidation)
	}
	if fullName == "" {
		return nil, fmt.Errorf("%w: fullName is required", ErrValidation)
	}

	nameEnc, err := s.enc.Encrypt(fullName)
	if err != nil {
		return nil, fmt.Errorf("encrypt full name: %w", err)
	}
	idEnc, err := s.enc.Encrypt(pii.StripNonDigits(in.NationalID))
	if err != nil {
		return nil, fmt.Errorf("encrypt national id: %w", err)
	}

	p := &Patient{
		ID:                  uuid.New(),
		Code:                code,
		EncryptedFullName:   nameEnc,
		EncryptedNationalID: idEnc,
		Status:              StatusNormal,
		Timestamp:           time.Now(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	// Log lines identify patients by pseudonym so PII and public codes stay
	// out of log storage.
	s.logger.Info().Str("patient", s.enc.Pseudonym(code, "pat")).Msg("patient registered")
	return p, nil
}

// Ingest validates an observation, normalizes its timestamp, replaces the
// patient's vitals group, and broadcasts the updated snapshot. An unknown
// patientId is rejected without creating a record or emitting an event.
func (s *Service) Ingest(ctx context.Context, obs Observation) (*Patient, error) {
	if err := validateObservation(obs); err != nil {
		return nil, err
	}

	v := Vitals{
		HeartRate:         *obs.HeartRate,
		SpO2:              *obs.SpO2,
		SystolicPressure:  *obs.SystolicPressure,
		DiastolicPressure: *obs.DiastolicPressure,
		Temperature:       *obs.Temperature,
		RespiratoryRate:   *obs.RespiratoryRate,
	}
	ts := NormalizeTimestamp(obs.Timestamp)

	p, err := s.repo.UpsertVitals(ctx, strings.TrimSpace(obs.PatientID), v, obs.Status, ts)
	if err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.Broadcast(NewEvent(p))
	}

	s.logger.Debug().
		Str("patient", s.enc.Pseudonym(p.Code, "pat")).
		Str("status", p.Status).
		Msg("vitals ingested")
	return p, nil
}

func validateObservation(obs Observation) error {
	if strings.TrimSpace(obs.PatientID) == "" {
		return fmt.Errorf("%w: patientId is required", ErrValidation)
	}
	if obs.HeartRate == nil || obs.SpO2 == nil || obs.SystolicPressure == nil ||
		obs.DiastolicPressure == nil || obs.Temperature == nil || obs.RespiratoryRate == nil {
		return fmt.Errorf("%w: all six vital signs are required", ErrValidation)
	}
	if !ValidStatus(obs.Status) {
		return fmt.Errorf("%w: status must be NORMAL or ALERT", ErrValidation)
	}
	return nil
}

// Get returns the role-appropriate view of a single patient by its public
// code.
func (s *Service) Get(ctx context.Context, code string, elevated bool) (*View, error) {
	p, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	v := s.projector.Project(p, elevated)
	return &v, nil
}

// List returns role-appropriate views of patients ordered by code, plus the
// total count for pagination.
func (s *Service) List(ctx context.Context, limit, offset int, elevated bool) ([]View, int, error) {
	patients, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	views := make([]View, 0, len(patients))
	for _, p := range patients {
		views = append(views, s.projector.Project(p, elevated))
	}
	return views, total, nil
}

// ExportRecord is the full-PII shape returned to elevated viewers only.
type ExportRecord struct {
	ID         string `json:"id"`
	PatientID  string `json:"patientId"`
	FullName   string `json:"fullName"`
	NationalID string `json:"nationalId"`
	View
}

// Export decrypts both PII fields of a patient for an elevated viewer. A
// decryption failure here is an error, not a silent degradation: an export
// that cannot produce the PII it promises must say so.
func (s *Service) Export(ctx context.Context, code string) (*ExportRecord, error) {
	p, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	fullName, err := s.enc.Decrypt(p.EncryptedFullName)
	if err != nil {
		return nil, fmt.Errorf("decrypt full name: %w", err)
	}
	nationalID, err := s.enc.Decrypt(p.EncryptedNationalID)
	if err != nil {
		return nil, fmt.Errorf("decrypt national id: %w", err)
	}

	// The audit line records the access without the PII itself: the patient
	// by pseudonym and the national id in masked display form.
	s.logger.Info().
		Str("patient", s.enc.Pseudonym(p.Code, "pat")).
		Str("nationalId", s.enc.MaskNationalID(nationalID)).
		Msg("full record exported")

	return &ExportRecord{
		ID:         p.ID.String(),
		PatientID:  p.Code,
		FullName:   fullName,
		NationalID: nationalID,
		View:       s.projector.Project(p, true),
	}, nil
}
