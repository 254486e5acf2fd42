package engine

import (
	"errors"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	p, err := BuildPrompt(" r1 ", "  be terse  ", "  hello  ", 128)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.ID != "r1" {
		t.Fatalf("id not trimmed: %q", p.ID)
	}
	if len(p.Messages) != 2 {
		t.Fatalf("want system+user, got %+v", p.Messages)
	}
	if p.Messages[0].Role != RoleSystem || p.Messages[0].Content != "be terse" {
		t.Fatalf("system message wrong: %+v", p.Messages[0])
	}
	if p.Messages[1].Role != RoleUser || p.Messages[1].Content != "hello" {
		t.Fatalf("user message wrong: %+v", p.Messages[1])
	}
	if p.MaxTokens != 128 {
		t.Fatalf("max tokens: %d", p.MaxTokens)
	}
}

func TestBuildPromptOmitsEmptySystemAndBudget(t *testing.T) {
	p, err := BuildPrompt("r1", "   ", "hi", 0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(p.Messages) != 1 || p.Messages[0].Role != RoleUser {
		t.Fatalf("blank system prompt must be dropped: %+v", p.Messages)
	}
	if p.MaxTokens != 0 {
		t.Fatalf("unset budget must stay zero: %d", p.MaxTokens)
	}
	if p, _ := BuildPrompt("r2", "", "hi", -5); p.MaxTokens != 0 {
		t.Fatalf("negative budget must be dropped: %d", p.MaxTokens)
	}
}

func TestBuildPromptRejectsBlankInputs(t *testing.T) {
	if _, err := BuildPrompt("  ", "", "hi", 0); !errors.Is(err, ErrEmptyRequestID) {
		t.Fatalf("want ErrEmptyRequestID, got %v", err)
	}
	if _, err := BuildPrompt("r1", "sys", "   \n\t ", 0); !errors.Is(err, ErrEmptyUserMessage) {
		t.Fatalf("want ErrEmptyUserMessage, got %v", err)
	}
}
