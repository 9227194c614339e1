package classifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestRemote(url string) *Remote {
	return NewRemote(RemoteConfig{
		Endpoint: url,
		Token:    "test-token",
		Timeout:  2 * time.Second,
	})
}

func TestRemoteClassify_Flagged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Write([]byte(`[[{"label":"OFFENSIVE","score":0.93},{"label":"NOT_OFFENSIVE","score":0.07}]]`))
	}))
	defer srv.Close()

	v, err := newTestRemote(srv.URL).Classify(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if v.Acceptable {
		t.Error("expected flagged verdict")
	}
	if v.Confidence != 0.93 {
		t.Errorf("Confidence = %v, want 0.93", v.Confidence)
	}
}

func TestRemoteClassify_BelowThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[{"label":"profane","score":0.31}]]`))
	}))
	defer srv.Close()

	v, err := newTestRemote(srv.URL).Classify(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if !v.Acceptable {
		t.Error("score below threshold should be acceptable")
	}
	if v.Confidence != 0.31 {
		t.Errorf("Confidence = %v, want 0.31", v.Confidence)
	}
}

func TestRemoteClassify_NoMatchingLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[{"label":"neutral","score":0.99}]]`))
	}))
	defer srv.Close()

	v, err := newTestRemote(srv.URL).Classify(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if !v.Acceptable {
		t.Error("expected acceptable verdict")
	}
	if v.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0 when no matching label", v.Confidence)
	}
}

func TestRemoteClassify_PositionalLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[{"label":"1","score":0.88},{"label":"0","score":0.12}]]`))
	}))
	defer srv.Close()

	v, err := newTestRemote(srv.URL).Classify(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if v.Acceptable {
		t.Error(`label "1" above threshold should flag`)
	}
}

func TestRemoteClassify_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}},
		{"malformed payload", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":"loading"}`))
		}},
		{"empty array", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[]`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestRemote(srv.URL).Classify(context.Background(), "some text")
			if !errors.Is(err, ErrUnavailable) {
				t.Errorf("Classify() error = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestRemoteClassify_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // shut down immediately so the call fails

	_, err := newTestRemote(srv.URL).Classify(context.Background(), "some text")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Classify() error = %v, want ErrUnavailable", err)
	}
}

func TestRemoteClassify_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	r := NewRemote(RemoteConfig{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := r.Classify(context.Background(), "some text")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Classify() error = %v, want ErrUnavailable on timeout", err)
	}
}
