package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"matador/internal/extractor"
)

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text(`{"action":"greeting",`),
				genai.Text(`"response":"¡Hola!"}`),
			}},
		}},
	}
	text, err := responseText(resp)
	if err != nil {
		t.Fatalf("responseText: %v", err)
	}
	in, err := extractor.ParseIntent(text)
	if err != nil || in.Action != extractor.ActionGreeting || in.Response != "¡Hola!" {
		t.Fatalf("unexpected intent %+v %v", in, err)
	}
}

func TestResponseTextEmpty(t *testing.T) {
	cases := []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{}}},
		{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}},
	}
	for i, resp := range cases {
		if _, err := responseText(resp); !errors.Is(err, extractor.ErrExtractorFailure) {
			t.Errorf("case %d: expected ErrExtractorFailure, got %v", i, err)
		}
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(context.Background(), "", ""); err == nil {
		t.Fatalf("expected error without API key")
	}
}
