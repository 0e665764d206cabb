package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"assessment-service/internal/domain"
)

type failingNotifier struct{ calls *int }

func (f failingNotifier) Notify(context.Context, domain.Activity) error {
	*f.calls++
	return errors.New("unreachable")
}

func TestMultiTriesEveryNotifier(t *testing.T) {
	calls := 0
	m := Multi{failingNotifier{&calls}, LogNotifier{}, failingNotifier{&calls}}
	if err := m.Notify(context.Background(), domain.Activity{Kind: domain.ActivityQuizPassed}); err == nil {
		t.Fatalf("expected first error to surface")
	}
	if calls != 2 {
		t.Fatalf("expected both failing notifiers to be called, got %d", calls)
	}
}

func TestSendGridNotifierPostsMail(t *testing.T) {
	var (
		gotAuth string
		gotPath string
		body    map[string]interface{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewSendGridNotifier("sg-key", "Assessments", "noreply@example.com", "students.example.com").WithHost(srv.URL)
	err := n.Notify(context.Background(), domain.Activity{
		UserID:  "student-1",
		Kind:    domain.ActivityCertificateIssued,
		Message: "Certificate CERT-20250310-ABCDEF12 issued",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotAuth != "Bearer sg-key" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotPath != endpoint {
		t.Fatalf("unexpected path %q", gotPath)
	}
	personalizations, _ := body["personalizations"].([]interface{})
	if len(personalizations) != 1 {
		t.Fatalf("expected one personalization, got %v", body["personalizations"])
	}
	p := personalizations[0].(map[string]interface{})
	if p["subject"] != "Your certificate has been issued" {
		t.Fatalf("unexpected subject %v", p["subject"])
	}
	to := p["to"].([]interface{})[0].(map[string]interface{})
	if to["email"] != "student-1@students.example.com" {
		t.Fatalf("unexpected recipient %v", to["email"])
	}
}

func TestSendGridNotifierReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	n := NewSendGridNotifier("wrong", "Assessments", "noreply@example.com", "example.com").WithHost(srv.URL)
	if err := n.Notify(context.Background(), domain.Activity{UserID: "u1", Kind: domain.ActivityQuizPassed}); err == nil {
		t.Fatalf("expected error for 401 response")
	}
}
