package utils

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateConnectionHandle(t *testing.T) {
	h1 := GenerateConnectionHandle()
	h2 := GenerateConnectionHandle()

	if h1 == h2 {
		t.Error("expected different handles")
	}
	if !strings.HasPrefix(h1, "conn_") {
		t.Errorf("expected prefix 'conn_', got %s", h1)
	}
}

func TestGenerateRoomID(t *testing.T) {
	id := GenerateRoomID()
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("expected a uuid, got %s: %v", id, err)
	}
}

func TestGenerateRequestID(t *testing.T) {
	r1 := GenerateRequestID()
	r2 := GenerateRequestID()

	if r1 == r2 {
		t.Error("expected different request ids")
	}
	if !strings.HasPrefix(r1, "req_") {
		t.Errorf("expected prefix 'req_', got %s", r1)
	}
}
