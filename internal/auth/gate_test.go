package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/loggate/internal/model"
)

type mockSessionLookup struct {
	lookupFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionLookup) Lookup(ctx context.Context, id string) (*model.Session, error) {
	return m.lookupFn(ctx, id)
}

func TestCredentials_Method_Precedence(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		want  Method
	}{
		{"none", Credentials{}, MethodNone},
		{"session only", Credentials{SessionCookie: "c"}, MethodSession},
		{"form beats session", Credentials{FormToken: "f", SessionCookie: "c"}, MethodForm},
		{"header beats all", Credentials{HeaderToken: "h", FormToken: "f", SessionCookie: "c"}, MethodHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.creds.Method(); got != tt.want {
				t.Errorf("Method() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGate_NoCredential_ReturnsErrNoCredential(t *testing.T) {
	store, _, codec := newTestStore(t)
	gate := NewGate(stubVerifier(nil), store, codec)

	_, err := gate.Authorize(context.Background(), Credentials{})
	if !errors.Is(err, model.ErrNoCredential) {
		t.Errorf("err = %v, want ErrNoCredential", err)
	}
}

func TestGate_ValidHeaderToken_Authorizes(t *testing.T) {
	store, _, codec := newTestStore(t)
	gate := NewGate(stubVerifier(nil), store, codec)

	d, err := gate.Authorize(context.Background(), Credentials{HeaderToken: "good"})
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if d.Method != MethodHeader {
		t.Errorf("Method = %q, want %q", d.Method, MethodHeader)
	}
	if d.Claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want %q", d.Claims.Subject, "user-1")
	}
}

func TestGate_ValidFormToken_Authorizes(t *testing.T) {
	store, _, codec := newTestStore(t)
	gate := NewGate(stubVerifier(nil), store, codec)

	d, err := gate.Authorize(context.Background(), Credentials{FormToken: "good"})
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if d.Method != MethodForm {
		t.Errorf("Method = %q, want %q", d.Method, MethodForm)
	}
}

func TestGate_InvalidHeaderToken_DoesNotFallBackToSession(t *testing.T) {
	store, _, codec := newTestStore(t)
	s, err := store.Create(context.Background(), model.VerifiedClaims{Subject: "user-1"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	calls := 0
	gate := NewGate(stubVerifier(&calls), store, codec)

	_, err = gate.Authorize(context.Background(), Credentials{
		HeaderToken:   "forged",
		FormToken:     "good",
		SessionCookie: codec.Encode(s.ID),
	})
	if !errors.Is(err, model.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
	if calls != 1 {
		t.Errorf("verifier called %d times, want 1", calls)
	}
}

func TestGate_ExpiredFormToken_ReturnsErrExpiredToken(t *testing.T) {
	store, _, codec := newTestStore(t)
	gate := NewGate(stubVerifier(nil), store, codec)

	_, err := gate.Authorize(context.Background(), Credentials{FormToken: "expired"})
	if !errors.Is(err, model.ErrExpiredToken) {
		t.Errorf("err = %v, want ErrExpiredToken", err)
	}
}

func TestGate_VerifierDown_ReturnsErrVerificationUnavailable(t *testing.T) {
	store, _, codec := newTestStore(t)
	gate := NewGate(stubVerifier(nil), store, codec)

	_, err := gate.Authorize(context.Background(), Credentials{HeaderToken: "down"})
	if !errors.Is(err, model.ErrVerificationUnavailable) {
		t.Errorf("err = %v, want ErrVerificationUnavailable", err)
	}
}

func TestGate_ValidSession_Authorizes(t *testing.T) {
	store, _, codec := newTestStore(t)
	claims := model.VerifiedClaims{Subject: "user-9", ExpiresAt: time.Now().Add(time.Hour)}
	s, _ := store.Create(context.Background(), claims)
	calls := 0
	gate := NewGate(stubVerifier(&calls), store, codec)

	d, err := gate.Authorize(context.Background(), Credentials{SessionCookie: codec.Encode(s.ID)})
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if d.Method != MethodSession {
		t.Errorf("Method = %q, want %q", d.Method, MethodSession)
	}
	if d.SessionID != s.ID {
		t.Errorf("SessionID = %q, want %q", d.SessionID, s.ID)
	}
	if d.Claims.Subject != "user-9" {
		t.Errorf("Subject = %q, want %q", d.Claims.Subject, "user-9")
	}
	if calls != 0 {
		t.Errorf("verifier called %d times for session auth, want 0", calls)
	}
}

func TestGate_UnsignedSessionCookie_ReturnsErrSessionNotFound(t *testing.T) {
	store, _, codec := newTestStore(t)
	s, _ := store.Create(context.Background(), model.VerifiedClaims{Subject: "user-1"})
	gate := NewGate(stubVerifier(nil), store, codec)

	_, err := gate.Authorize(context.Background(), Credentials{SessionCookie: s.ID})
	if !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestGate_UnknownSession_ReturnsErrSessionNotFound(t *testing.T) {
	store, _, codec := newTestStore(t)
	gate := NewGate(stubVerifier(nil), store, codec)

	_, err := gate.Authorize(context.Background(), Credentials{SessionCookie: codec.Encode("deadbeef")})
	if !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestGate_SessionBackendError_ReturnsError(t *testing.T) {
	_, _, codec := newTestStore(t)
	lookup := &mockSessionLookup{
		lookupFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, errors.New("redis unavailable")
		},
	}
	gate := NewGate(stubVerifier(nil), lookup, codec)

	d, err := gate.Authorize(context.Background(), Credentials{SessionCookie: codec.Encode("abc")})
	if err == nil {
		t.Fatal("expected error")
	}
	if d != nil {
		t.Error("decision must be nil on failure")
	}
}
