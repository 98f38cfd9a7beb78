package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, status int, body string, seen *Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		if seen != nil {
			if err := json.NewDecoder(r.Body).Decode(seen); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClassifyImage_PicksTopPrediction(t *testing.T) {
	t.Parallel()

	var seen Request
	srv := newTestServer(t, http.StatusOK, `{"predictions":[
		{"label":"trash and litter on street","score":0.21},
		{"label":"garbage container / dumpster","score":0.64},
		{"label":"road / pothole / sidewalk","score":0.15}]}`, &seen)

	sig, err := New(srv.URL).ClassifyImage(context.Background(), "photos/a.jpg")
	if err != nil {
		t.Fatalf("ClassifyImage: %v", err)
	}
	if sig.Label != "garbage container / dumpster" || sig.Confidence != 0.64 {
		t.Errorf("sig = %+v", sig)
	}
	if sig.Relevant {
		t.Error("relevance is decided by the caller")
	}
	if seen.PhotoRef != "photos/a.jpg" || len(seen.Labels) != len(Labels) {
		t.Errorf("request = %+v", seen)
	}
}

func TestClassifyImage_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusInternalServerError, "model not loaded", nil},
		{"bad json", http.StatusOK, "{not json", nil},
		{"no predictions", http.StatusOK, `{"predictions":[]}`, errNoPredictions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(t, tt.status, tt.body, nil)
			_, err := New(srv.URL).ClassifyImage(context.Background(), "photos/a.jpg")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClassifyImage_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := New(url).ClassifyImage(context.Background(), "x.jpg"); err == nil {
		t.Fatal("expected error")
	}
}

func TestTop_FirstWinsTies(t *testing.T) {
	t.Parallel()

	p, ok := top([]Prediction{{"a", 0.5}, {"b", 0.5}, {"c", 0.1}})
	if !ok || p.Label != "a" {
		t.Errorf("top = %+v/%v, want a", p, ok)
	}
	if _, ok := top(nil); ok {
		t.Error("empty input should report false")
	}
}
