package upstream_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/issue-tracker/internal/config"
	"github.com/example/issue-tracker/internal/domain"
	"github.com/example/issue-tracker/internal/faults"
	"github.com/example/issue-tracker/internal/upstream"
)

func upstreamConfig(baseURL string) config.UpstreamConfig {
	return config.UpstreamConfig{
		BaseURL:         baseURL,
		ConnectTimeout:  200 * time.Millisecond,
		ResponseTimeout: 500 * time.Millisecond,
	}
}

func TestFetchUserDecodesEntity(t *testing.T) {
	want := domain.User{
		ID:          "u-1",
		Email:       "dev@example.com",
		DisplayName: "Dev",
		Role:        domain.RoleWriter,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/u-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want)
	}))
	defer server.Close()

	client, err := upstream.NewUserClient(upstreamConfig(server.URL), zerolog.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	user, err := client.FetchUser(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if user.ID != want.ID || user.Email != want.Email || user.Role != want.Role {
		t.Fatalf("user = %+v, want %+v", user, want)
	}
	if !user.CanWrite() {
		t.Fatal("writer role should grant write access")
	}
}

func TestFetchNotFoundIsNormalOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client, err := upstream.NewProjectClient(upstreamConfig(server.URL), zerolog.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.FetchProject(context.Background(), "p-404")
	if !errors.Is(err, faults.ErrNotFoundUpstream) {
		t.Fatalf("err = %v, want not found upstream", err)
	}

	var nf *faults.NotFoundUpstream
	if !errors.As(err, &nf) || nf.Service != "project" || nf.ID != "p-404" {
		t.Fatalf("metadata = %+v", nf)
	}
	if errors.Is(err, faults.ErrUpstreamUnavailable) {
		t.Fatal("404 must not be classified as unavailability")
	}
}

func TestFetchUnexpectedStatusIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := upstream.NewUserClient(upstreamConfig(server.URL), zerolog.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.FetchUser(context.Background(), "u-1")
	if !errors.Is(err, faults.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want upstream unavailable", err)
	}

	var uu *faults.UpstreamUnavailable
	if !errors.As(err, &uu) || uu.Service != "user" {
		t.Fatalf("metadata = %+v", uu)
	}
}

func TestFetchConnectionFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := server.URL
	server.Close()

	client, err := upstream.NewUserClient(upstreamConfig(base), zerolog.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.FetchUser(context.Background(), "u-1")
	if !errors.Is(err, faults.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want upstream unavailable", err)
	}
	if errors.Is(err, faults.ErrNotFoundUpstream) {
		t.Fatal("connection failure must not be classified as not found")
	}
}

func TestFetchRespondsToResponseTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := upstreamConfig(server.URL)
	cfg.ResponseTimeout = 50 * time.Millisecond

	client, err := upstream.NewUserClient(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	start := time.Now()
	_, err = client.FetchUser(context.Background(), "u-1")
	if !errors.Is(err, faults.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want upstream unavailable", err)
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Fatalf("response timeout not enforced, took %v", elapsed)
	}
}

func TestBreakerFailsFastAfterRepeatedConnectionFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := server.URL
	server.Close()

	client, err := upstream.NewUserClient(upstreamConfig(base), zerolog.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	for i := 0; i < 6; i++ {
		if _, err := client.FetchUser(context.Background(), "u-1"); err == nil {
			t.Fatalf("call %d unexpectedly succeeded", i)
		}
	}

	// With the breaker open the call must not attempt a dial at all.
	start := time.Now()
	_, err = client.FetchUser(context.Background(), "u-1")
	if !errors.Is(err, faults.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want upstream unavailable", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("open breaker still dialing, call took %v", elapsed)
	}
}
