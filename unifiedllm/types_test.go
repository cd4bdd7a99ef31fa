package unifiedllm

import (
	"encoding/json"
	"testing"
)

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		msg  Message
		role Role
	}{
		{SystemMessage("You are helpful."), RoleSystem},
		{UserMessage("Hello"), RoleUser},
		{AssistantMessage("Hi there"), RoleAssistant},
	}
	for _, tt := range tests {
		if tt.msg.Role != tt.role {
			t.Errorf("expected role %q, got %q", tt.role, tt.msg.Role)
		}
		if tt.msg.Content == "" {
			t.Errorf("expected content for %q", tt.role)
		}
	}
}

func TestRequestSystemPrompt(t *testing.T) {
	req := Request{Messages: []Message{
		SystemMessage("one"),
		UserMessage("ignored"),
		SystemMessage(""),
		SystemMessage("two"),
	}}
	if got := req.SystemPrompt(); got != "one\ntwo" {
		t.Errorf("expected %q, got %q", "one\ntwo", got)
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}
	b := Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}
	if got := a.Add(b); got != (Usage{InputTokens: 11, OutputTokens: 22, TotalTokens: 33}) {
		t.Errorf("unexpected sum %+v", got)
	}
}

func TestResponseJSON(t *testing.T) {
	resp := Response{ID: "r1", Provider: "ollama", Message: AssistantMessage("hi")}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	msg, _ := decoded["message"].(map[string]any)
	if msg["role"] != "assistant" || msg["content"] != "hi" {
		t.Errorf("unexpected message encoding %v", msg)
	}
	if resp.Text() != "hi" {
		t.Errorf("expected text %q, got %q", "hi", resp.Text())
	}
}
