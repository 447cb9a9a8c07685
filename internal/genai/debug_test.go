package genai

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/openai/openai-go"
)

func TestDebugLoggingWritesRequestAndResponse(t *testing.T) {
	stateDir := t.TempDir()
	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Test response"}},
		},
	}
	client := &Client{
		chat:        &mockChatService{resp: mockResp},
		model:       "test-model",
		temperature: 0.1,
		maxTokens:   100,
		debugMode:   true,
		stateDir:    stateDir,
	}

	if _, err := client.GenerateWithTools(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("menu")}, nil); err != nil {
		t.Fatalf("GenerateWithTools failed: %v", err)
	}

	files, err := os.ReadDir(filepath.Join(stateDir, "debug"))
	if err != nil {
		t.Fatalf("Failed to read debug directory: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 debug file, got %d", len(files))
	}
	content, err := os.ReadFile(filepath.Join(stateDir, "debug", files[0].Name()))
	if err != nil {
		t.Fatalf("Failed to read debug file: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("Failed to unmarshal debug log: %v", err)
	}
	for _, field := range []string{"timestamp", "method", "model", "params", "response"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("field %q missing from debug log", field)
		}
	}
	if entry["method"] != "GenerateWithTools" || entry["model"] != "test-model" {
		t.Errorf("unexpected method/model: %v/%v", entry["method"], entry["model"])
	}
}

func TestDebugLoggingDisabled(t *testing.T) {
	stateDir := t.TempDir()
	client := &Client{
		chat:     &mockChatService{resp: openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{{}}}},
		model:    "test-model",
		stateDir: stateDir,
	}
	if _, err := client.GeneratePromptWithContext(context.Background(), "System prompt", "User prompt"); err != nil {
		t.Fatalf("GeneratePromptWithContext failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(stateDir, "debug")); !os.IsNotExist(err) {
		t.Errorf("debug directory should not exist when debug mode is disabled")
	}
}
