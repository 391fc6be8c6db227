package token

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"municipal-complaint-service/api/internal/models"
)

type memKV struct {
	values map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{values: map[string][]byte{}}
}

func (m *memKV) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memKV) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func testOfficer() models.Officer {
	return models.Officer{OfficerID: uuid.New(), DepartmentID: uuid.New(), Name: "สมชาย"}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	s := New("secret-1", time.Hour, newMemKV())
	officer := testOfficer()

	raw, err := s.Issue(context.Background(), officer)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := s.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.OfficerID != officer.OfficerID.String() {
		t.Fatalf("officer id = %q", claims.OfficerID)
	}
	if claims.DepartmentID != officer.DepartmentID.String() {
		t.Fatalf("department id = %q", claims.DepartmentID)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := New("secret-1", time.Hour, nil)
	verifier := New("secret-2", time.Hour, nil)

	raw, err := issuer.Issue(context.Background(), testOfficer())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	s := New("secret-1", time.Minute, newMemKV())
	issuedAt := time.Now()
	s.now = func() time.Time { return issuedAt }

	raw, err := s.Issue(context.Background(), testOfficer())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	s.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := s.Verify(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v", err)
	}
}

func TestRevokeInvalidatesImmediately(t *testing.T) {
	s := New("secret-1", time.Hour, newMemKV())

	raw, err := s.Issue(context.Background(), testOfficer())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := s.Revoke(context.Background(), raw); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := s.Verify(context.Background(), raw); !errors.Is(err, ErrRevoked) {
		t.Fatalf("err = %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	s := New("secret-1", time.Hour, nil)
	if _, err := s.Verify(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v", err)
	}
}
