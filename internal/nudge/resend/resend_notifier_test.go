package resend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/habitkit/habits/internal/nudge"
)

func TestRenderBody(t *testing.T) {
	body, err := renderBody(nudge.Reminder{Expiring: []string{"guitar <3"}, Due: []string{"coding"}, Hours: 4})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"next 4 hours", "guitar &lt;3", "Reminders due today", "coding"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}

	body, err = renderBody(nudge.Reminder{Due: []string{"coding"}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(body, "expiring") {
		t.Fatalf("unexpected expiring section:\n%s", body)
	}
}

func TestSubject(t *testing.T) {
	if got := subject(nudge.Reminder{Expiring: []string{"a"}}); got != "Streaks are expiring soon" {
		t.Fatalf("got %q", got)
	}
	if got := subject(nudge.Reminder{Due: []string{"a"}}); got != "Habit reminders" {
		t.Fatalf("got %q", got)
	}
}

func TestSendNudge_NeedsConfig(t *testing.T) {
	n := &ResendNotifier{}
	if err := n.SendNudge(context.Background(), nudge.Reminder{Due: []string{"a"}}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestSendNudge_PostsEmail(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/emails") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer re_test" {
			t.Errorf("got Authorization %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"email_123"}`))
	}))
	defer ts.Close()

	n := &ResendNotifier{ApiKey: "re_test", Email: "me@example.com", BaseURL: ts.URL + "/"}
	if err := n.SendNudge(context.Background(), nudge.Reminder{Expiring: []string{"guitar"}, Hours: 2}); err != nil {
		t.Fatal(err)
	}
	if got["from"] != DefaultFrom || got["subject"] != "Streaks are expiring soon" {
		t.Fatalf("got payload %v", got)
	}
}
