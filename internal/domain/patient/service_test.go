package patient

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingHub struct {
	mu     sync.Mutex
	events []any
}

func (h *recordingHub) Broadcast(event any) {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *recordingHub) last(t *testing.T) Event {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) == 0 {
		t.Fatal("no events broadcast")
	}
	ev, ok := h.events[len(h.events)-1].(Event)
	if !ok {
		t.Fatalf("broadcast payload is %T, want Event", h.events[len(h.events)-1])
	}
	return ev
}

func newTestService(t *testing.T) (*Service, *recordingHub) {
	t.Helper()
	hub := &recordingHub{}
	svc := NewService(NewRepoMem(), newTestEncryption(t), hub, zerolog.Nop())
	return svc, hub
}

func validObservation(code string) Observation {
	hr := 88
	spo2 := 97.0
	sys := 125
	dia := 82
	temp := 36.9
	rr := 17.0
	return Observation{
		PatientID:         code,
		Timestamp:         "2024-05-01T10:00:00",
		HeartRate:         &hr,
		SpO2:              &spo2,
		SystolicPressure:  &sys,
		DiastolicPressure: &dia,
		Temperature:       &temp,
		RespiratoryRate:   &rr,
		Status:            StatusAlert,
	}
}

func TestRegisterEncryptsPII(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterInput{PatientID: "PAC001", FullName: "João Silva", NationalID: "123.456.789-01"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.EncryptedFullName == "João Silva" || p.EncryptedFullName == "" {
		t.Errorf("full name stored without encryption: %q", p.EncryptedFullName)
	}
	if p.Status != StatusNormal || p.Vitals != (Vitals{}) {
		t.Errorf("new patient vitals/status = %+v %q, want zeroed NORMAL", p.Vitals, p.Status)
	}

	name, err := svc.enc.Decrypt(p.EncryptedFullName)
	if err != nil || name != "João Silva" {
		t.Errorf("Decrypt name = %q, %v", name, err)
	}
	id, err := svc.enc.Decrypt(p.EncryptedNationalID)
	if err != nil || id != "12345678901" {
		t.Errorf("Decrypt national id = %q, %v; want bare digits", id, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{FullName: "A B"}); !errors.Is(err, ErrValidation) {
		t.Errorf("missing patientId err = %v, want ErrValidation", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{PatientID: "PAC001"}); !errors.Is(err, ErrValidation) {
		t.Errorf("missing fullName err = %v, want ErrValidation", err)
	}
}

func TestRegisterDuplicateConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	in := RegisterInput{PatientID: "PAC001", FullName: "João Silva", NationalID: "12345678901"}
	if _, err := svc.Register(ctx, in); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, in); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate Register err = %v, want ErrConflict", err)
	}
}

func TestIngestUpdatesAndBroadcasts(t *testing.T) {
	svc, hub := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{PatientID: "PAC001", FullName: "João Silva"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	p, err := svc.Ingest(ctx, validObservation("PAC001"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if p.Vitals.HeartRate != 88 || p.Status != StatusAlert {
		t.Errorf("ingested record = %+v", p)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	if !p.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", p.Timestamp, want)
	}

	if hub.count() != 1 {
		t.Fatalf("broadcasts = %d, want 1", hub.count())
	}
	ev := hub.last(t)
	if ev.PatientID != "PAC001" || ev.HeartRate != 88 || ev.Status != StatusAlert {
		t.Errorf("event = %+v", ev)
	}
}

func TestIngestUnknownPatientNoRecordNoBroadcast(t *testing.T) {
	svc, hub := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, validObservation("PAC404"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if hub.count() != 0 {
		t.Errorf("broadcasts = %d, want 0", hub.count())
	}
	if _, total, _ := svc.List(ctx, 0, 0, true); total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
}

func TestIngestValidation(t *testing.T) {
	svc, hub := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{PatientID: "PAC001", FullName: "João Silva"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	missingField := validObservation("PAC001")
	missingField.SpO2 = nil
	if _, err := svc.Ingest(ctx, missingField); !errors.Is(err, ErrValidation) {
		t.Errorf("missing vital err = %v, want ErrValidation", err)
	}

	badStatus := validObservation("PAC001")
	badStatus.Status = "PANIC"
	if _, err := svc.Ingest(ctx, badStatus); !errors.Is(err, ErrValidation) {
		t.Errorf("bad status err = %v, want ErrValidation", err)
	}

	noCode := validObservation("")
	if _, err := svc.Ingest(ctx, noCode); !errors.Is(err, ErrValidation) {
		t.Errorf("missing patientId err = %v, want ErrValidation", err)
	}

	if hub.count() != 0 {
		t.Errorf("rejected ingests broadcast %d events, want 0", hub.count())
	}
}

func TestIngestLastWriteWins(t *testing.T) {
	svc, hub := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{PatientID: "PAC001", FullName: "João Silva"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	first := validObservation("PAC001")
	if _, err := svc.Ingest(ctx, first); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	second := validObservation("PAC001")
	hr := 140
	second.HeartRate = &hr
	second.Status = StatusNormal
	if _, err := svc.Ingest(ctx, second); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	view, err := svc.Get(ctx, "PAC001", true)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.HeartRate != 140 || view.Status != StatusNormal {
		t.Errorf("stored record = %+v, want the later write", view)
	}
	if hub.count() != 2 {
		t.Errorf("broadcasts = %d, want 2", hub.count())
	}
}

func TestGetProjectsByRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{PatientID: "PAC001", FullName: "João Silva"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	elevated, err := svc.Get(ctx, "PAC001", true)
	if err != nil {
		t.Fatalf("Get elevated: %v", err)
	}
	if elevated.DisplayName != "João Silva" {
		t.Errorf("elevated DisplayName = %q", elevated.DisplayName)
	}

	redacted, err := svc.Get(ctx, "PAC001", false)
	if err != nil {
		t.Fatalf("Get redacted: %v", err)
	}
	if redacted.DisplayName != "J. S." {
		t.Errorf("redacted DisplayName = %q", redacted.DisplayName)
	}
}

func TestExportReturnsFullPII(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{PatientID: "PAC001", FullName: "João Silva", NationalID: "123.456.789-01"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rec, err := svc.Export(ctx, "PAC001")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if rec.FullName != "João Silva" || rec.NationalID != "12345678901" {
		t.Errorf("export = %+v", rec)
	}

	if _, err := svc.Export(ctx, "PAC404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("export unknown err = %v, want ErrNotFound", err)
	}
}

func TestServiceLogsPseudonymsNotIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	hub := &recordingHub{}
	svc := NewService(NewRepoMem(), newTestEncryption(t), hub, zerolog.New(&buf))
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{PatientID: "PAC009", FullName: "João Silva", NationalID: "123.456.789-01"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Export(ctx, "PAC009"); err != nil {
		t.Fatalf("Export: %v", err)
	}

	logs := buf.String()
	for _, leaked := range []string{"PAC009", "João", "Silva", "12345678901", "123.456.789-01"} {
		if strings.Contains(logs, leaked) {
			t.Errorf("log output leaked %q: %s", leaked, logs)
		}
	}
	if !strings.Contains(logs, "pat_") {
		t.Errorf("log output has no patient pseudonym: %s", logs)
	}
	if !strings.Contains(logs, "XXX.XXX.XXX-01") {
		t.Errorf("log output has no masked national id: %s", logs)
	}
}
