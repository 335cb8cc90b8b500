package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ArmanBehnam/clark/internal/errors"
)

const chatCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "STRUCTURAL STEEL NOTES\n1. All steel A36 Steel\n\nDESIGN CRITERIA"}
  }],
  "usage": {"prompt_tokens": 120, "completion_tokens": 20, "total_tokens": 140}
}`

func TestOpenAIVisionRecognize(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatCompletion)
	}))
	defer srv.Close()

	eng, err := NewOpenAIVisionEngine(OpenAIVisionConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", RateLimit: 600})
	if err != nil {
		t.Fatal(err)
	}

	rec, err := eng.Recognize(context.Background(), Input{Image: []byte{0x89, 'P', 'N', 'G'}, PageNumber: 2, Format: "png"}, Options{})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if gotBody["model"] != openAIVisionDefaultModel {
		t.Errorf("model = %v", gotBody["model"])
	}
	if len(rec.Elements) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d", len(rec.Elements))
	}
	if rec.Confidence != openAIVisionConfidence {
		t.Errorf("confidence = %v", rec.Confidence)
	}
	first, second := rec.Elements[0], rec.Elements[1]
	if first.PageNumber != 2 || !strings.HasPrefix(first.Text, "STRUCTURAL STEEL NOTES") {
		t.Errorf("first element = %+v", first)
	}
	if !approx(first.BBox.Height, 2.0/3.0) || !approx(second.BBox.Y, 2.0/3.0) {
		t.Errorf("unexpected band layout %+v / %+v", first.BBox, second.BBox)
	}
}

func TestOpenAIVisionErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   errors.EngineErrorKind
	}{
		{"auth", http.StatusUnauthorized, errors.KindAuth},
		{"rate limit", http.StatusTooManyRequests, errors.KindRateLimit},
		{"bad request", http.StatusBadRequest, errors.KindUnsupportedInput},
		{"server", http.StatusInternalServerError, errors.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"failure","type":"test"}}`)
			}))
			defer srv.Close()

			eng, err := NewOpenAIVisionEngine(OpenAIVisionConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", RateLimit: 600})
			if err != nil {
				t.Fatal(err)
			}
			_, err = eng.Recognize(context.Background(), Input{Image: []byte("x"), PageNumber: 1}, Options{})
			if got := errors.KindOf(err); got != tt.want {
				t.Fatalf("kind = %q, want %q (err=%v)", got, tt.want, err)
			}
			if tt.want == errors.KindRateLimit {
				var ee *errors.EngineError
				if !asEngineError(err, &ee) || ee.RetryAfter != 2*time.Second {
					t.Errorf("expected RetryAfter 2s, got %+v", ee)
				}
			}
		})
	}
}

func TestParagraphElementsEmpty(t *testing.T) {
	if got := paragraphElements("  \n\n ", 1, "openai_vision"); got != nil {
		t.Errorf("expected no elements, got %v", got)
	}
}
