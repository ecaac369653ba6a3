package models

// WebSocket event payload types for the broadcast messages the chat view
// depends on. Typed instead of map[string]interface{} because these are
// high-frequency calls.

// WSMessageInserted is the payload for "message_inserted" broadcasts on a
// conversation topic. Mirrors the realtime insert feed.
type WSMessageInserted struct {
	ConversationID string  `json:"conversation_id"`
	Message        Message `json:"message"`
}

// WSTurnStatus is the payload for "turn_status" broadcasts (drafted,
// generating, settled, failed).
type WSTurnStatus struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	Detail         string `json:"detail,omitempty"`
}

// WSConversationDeleted is the payload for "conversation_deleted" broadcasts.
type WSConversationDeleted struct {
	ConversationID string `json:"conversation_id"`
}
