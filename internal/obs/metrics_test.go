package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                     "/",
		"/metrics":                             "/metrics",
		"/v1/users/me":                         "/v1/users/me",
		"/v1/users/01HZX3Q6Y7P9V1B2C3D4E5F6G7": "/v1/users/:id",
		"/v1/users/abc/roles":                  "/v1/users/:id/roles",
		"/v1/roles/abc":                        "/v1/roles/:id",
		"/v1/roles/abc/permissions":            "/v1/roles/:id/permissions",
		"/v1/roles/by-name/Admin/users":        "/v1/roles/by-name/:name/users",
		"/v1/auth/login":                       "/v1/auth/login",
		"/v1/permissions?limit=10":             "/v1/permissions",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentCountsByCanonicalPath(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/roles/:id", "418"))

	for _, id := range []string{"a", "b", "c"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/roles/"+id, nil))
	}

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/roles/:id", "418"))
	if after-before != 3 {
		t.Fatalf("expected 3 requests counted under canonical path, got %v", after-before)
	}
}

func TestAuthCounters(t *testing.T) {
	before := testutil.ToFloat64(refreshTotal.WithLabelValues("success"))
	ObserveRefresh("success")
	if got := testutil.ToFloat64(refreshTotal.WithLabelValues("success")); got != before+1 {
		t.Fatalf("refresh counter not incremented: %v", got)
	}
	issued := testutil.ToFloat64(tokensIssued)
	TokenIssued()
	if got := testutil.ToFloat64(tokensIssued); got != issued+1 {
		t.Fatalf("issued counter not incremented: %v", got)
	}
}
