package models

import (
	"encoding/json"
	"testing"
)

func TestUserPasswordHashOmittedFromJSON(t *testing.T) {
	u := User{
		ID:           "u-001",
		Username:     "alice",
		PasswordHash: "super-secret",
		DisplayName:  "Alice",
	}

	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal to map failed: %v", err)
	}
	if _, ok := raw["password_hash"]; ok {
		t.Error("password_hash should not appear in JSON output")
	}
	if _, ok := raw["PasswordHash"]; ok {
		t.Error("PasswordHash should not appear in JSON output")
	}
}

func TestSecretEncryptedValueOmittedFromJSON(t *testing.T) {
	s := Secret{
		ID:             "sec-001",
		Name:           "GENERATION_KEY",
		EncryptedValue: "encrypted-bytes",
		Description:    "Generation API key",
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal to map failed: %v", err)
	}
	if _, ok := raw["encrypted_value"]; ok {
		t.Error("encrypted_value should not appear in JSON output")
	}
}

func TestConversationSummaryFlattensConversation(t *testing.T) {
	cs := ConversationSummary{
		Conversation: Conversation{ID: "c-001", AgentID: "a-001", UserID: "u-001", Title: "Research Buddy"},
		AgentName:    "Research Buddy",
		LastMessage:  "hello",
	}

	data, err := json.Marshal(cs)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal to map failed: %v", err)
	}
	// Embedded fields must serialize at the top level, not nested.
	if raw["id"] != "c-001" {
		t.Errorf("id = %v, want c-001 at top level", raw["id"])
	}
	if raw["agent_name"] != "Research Buddy" {
		t.Errorf("agent_name = %v", raw["agent_name"])
	}
	if raw["last_message"] != "hello" {
		t.Errorf("last_message = %v", raw["last_message"])
	}
}
