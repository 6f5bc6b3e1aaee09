package patient

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/camelloncase/healthgo/internal/platform/pii"
)

// NamePlaceholder is rendered when a name is blank, absent, or its
// ciphertext cannot be decrypted.
const NamePlaceholder = "—"

// Projector produces the outward representation of a Patient record for a
// given viewer capability: the decrypted full name for elevated viewers,
// the redacted initials otherwise.
type Projector struct {
	enc    *pii.EncryptionService
	logger zerolog.Logger
}

// NewProjector creates a projector using enc to decrypt PII fields.
func NewProjector(enc *pii.EncryptionService, logger zerolog.Logger) *Projector {
	return &Projector{enc: enc, logger: logger}
}

// Project builds the role-appropriate view of p. A decryption failure never
// propagates: the name degrades to the placeholder while the non-PII vitals,
// status, and timestamp are still returned, so a corrupted PII field can
// never hide clinically relevant data.
func (pr *Projector) Project(p *Patient, elevated bool) View {
	fullName, err := pr.enc.Decrypt(p.EncryptedFullName)
	if err != nil {
		pr.logger.Error().Err(err).Str("patient", p.Code).Msg("decrypt full name failed, rendering placeholder")
		fullName = ""
	}

	var displayName string
	if elevated {
		displayName = fullName
		if strings.TrimSpace(displayName) == "" {
			displayName = NamePlaceholder
		}
	} else {
		displayName = RedactName(fullName)
	}

	return View{
		ID:                p.ID,
		PatientID:         p.Code,
		DisplayName:       displayName,
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

// RedactName reduces a full name to non-identifying initials: "João Silva"
// becomes "J. S.", a single token "Madonna" becomes "M.", and a blank name
// becomes the placeholder.
func RedactName(full string) string {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return NamePlaceholder
	}

	first := strings.ToUpper(string([]rune(parts[0])[0]))
	if len(parts) == 1 {
		return first + "."
	}

	last := strings.ToUpper(string([]rune(parts[len(parts)-1])[0]))
	return first + ". " + last + "."
}
