package jobs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type nopHandler struct{ typ string }

func (h *nopHandler) Type() string       { return h.typ }
func (h *nopHandler) Run(*Context) error { return nil }

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&nopHandler{typ: "a"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(&nopHandler{typ: "a"}); err == nil {
		t.Fatal("duplicate job type must be rejected")
	}
	if err := r.Register(&nopHandler{}); err == nil {
		t.Fatal("empty job type must be rejected")
	}
	if _, ok := r.Get("a"); !ok {
		t.Fatal("registered handler not found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("unregistered handler returned")
	}
}

func TestContextPayloadAccessors(t *testing.T) {
	id := uuid.New()
	job := &domain.JobRun{
		JobType: domain.JobTypeAliasDiscovery,
		Payload: datatypes.JSON([]byte(`{"document_id":"` + id.String() + `","note":"x"}`)),
	}
	jc := NewContext(context.Background(), logger.NewNop(), job)

	got, ok := jc.PayloadUUID("document_id")
	if !ok || got != id {
		t.Fatalf("PayloadUUID = %v, %v", got, ok)
	}
	if jc.PayloadString("note") != "x" {
		t.Fatalf("PayloadString = %q", jc.PayloadString("note"))
	}
	if _, ok := jc.PayloadUUID("missing"); ok {
		t.Fatal("missing key must not parse")
	}
}

func TestContextToleratesBadPayload(t *testing.T) {
	job := &domain.JobRun{JobType: "x", Payload: datatypes.JSON([]byte(`not json`))}
	jc := NewContext(context.Background(), logger.NewNop(), job)
	if jc.Payload() != nil {
		t.Fatalf("bad payload must decode to nil, got %v", jc.Payload())
	}
}
