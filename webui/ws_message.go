package webui

import (
	"time"

	"pixelbatch/core"
	"pixelbatch/generation"
)

// Message types pushed to websocket clients.
const (
	// MessageTypeInitial is sent once on connect with the current state.
	MessageTypeInitial = "initial"

	// MessageTypeStatus carries every write to the status board.
	MessageTypeStatus = "status"

	// MessageTypeImageAdded carries a record as soon as it is stored.
	MessageTypeImageAdded = "image_added"

	// MessageTypeImagesDeleted lists ids removed from the store.
	MessageTypeImagesDeleted = "images_deleted"

	// MessageTypeKeysChanged reports the new pool size after a key edit.
	MessageTypeKeysChanged = "keys_changed"

	// MessageTypeError is a server-side error notice.
	MessageTypeError = "error"
)

// WSMessage is the envelope for every websocket message.
type WSMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewWSMessage stamps a message with the current time.
func NewWSMessage(msgType string, data any) WSMessage {
	return WSMessage{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// InitialData is the snapshot sent to a new client.
type InitialData struct {
	Status     generation.Status `json:"status"`
	Running    bool              `json:"running"`
	ImageCount int               `json:"image_count"`
	KeyCount   int               `json:"key_count"`
}

// ImagesDeletedData lists removed record ids.
type ImagesDeletedData struct {
	IDs []int64 `json:"ids"`
}

// KeysChangedData carries the pool size, never the keys.
type KeysChangedData struct {
	Count int `json:"count"`
}

// ErrorData is a server-side error notice.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewInitialMessage creates the connect snapshot message.
func NewInitialMessage(data InitialData) WSMessage {
	return NewWSMessage(MessageTypeInitial, data)
}

// NewStatusMessage wraps a status board value.
func NewStatusMessage(s generation.Status) WSMessage {
	return NewWSMessage(MessageTypeStatus, s)
}

// NewImageAddedMessage wraps a stored record.
func NewImageAddedMessage(rec core.ImageRecord) WSMessage {
	return NewWSMessage(MessageTypeImageAdded, rec)
}

// NewImagesDeletedMessage lists removed ids.
func NewImagesDeletedMessage(ids []int64) WSMessage {
	return NewWSMessage(MessageTypeImagesDeleted, ImagesDeletedData{IDs: ids})
}

// NewKeysChangedMessage reports the pool size.
func NewKeysChangedMessage(count int) WSMessage {
	return NewWSMessage(MessageTypeKeysChanged, KeysChangedData{Count: count})
}

// NewErrorMessage creates an error notice.
func NewErrorMessage(code, message string) WSMessage {
	return NewWSMessage(MessageTypeError, ErrorData{Code: code, Message: message})
}
