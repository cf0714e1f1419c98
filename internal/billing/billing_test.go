package billing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusActive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/subscriptions/42" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("auth = %q", auth)
		}
		fmt.Fprint(w, `{"active":true,"tier":"premium","next_renewal":"2026-09-28T00:00:00Z"}`)
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, "secret", nil)
	st, err := o.Status(context.Background(), 42)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Active || st.Tier != "premium" || st.NextRenewal.IsZero() {
		t.Errorf("status = %+v", st)
	}
}

func TestStatusUnknownUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, "", nil)
	st, err := o.Status(context.Background(), 404)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Active {
		t.Error("unknown user must not be active")
	}
}

func TestStatusServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, "", nil)
	if _, err := o.Status(context.Background(), 1); err == nil {
		t.Error("expected error for 500 response")
	}
}
