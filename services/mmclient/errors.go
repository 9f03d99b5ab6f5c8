package mmclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// PluginError is a non-2xx response from the importer plugin API.
type PluginError struct {
	StatusCode int
	Message    string
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin API error (%d): %s", e.StatusCode, e.Message)
}

func newPluginError(statusCode int, body []byte) *PluginError {
	var payload struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	if len(message) > 500 {
		message = message[:500]
	}
	return &PluginError{StatusCode: statusCode, Message: message}
}

// IsDuplicate reports whether the error means the resource already exists,
// which importers treat as success.
func IsDuplicate(err error) bool {
	var pluginErr *PluginError
	if !errors.As(err, &pluginErr) {
		return false
	}
	if pluginErr.StatusCode == http.StatusConflict {
		return true
	}
	message := strings.ToLower(pluginErr.Message)
	return strings.Contains(message, "already exists") ||
		strings.Contains(message, "reaction exists") ||
		strings.Contains(message, "duplicate")
}

// IsEmojiNotFound reports whether a reaction failed because the emoji name
// is unknown to the server, which means the next candidate name should be
// tried.
func IsEmojiNotFound(err error) bool {
	var pluginErr *PluginError
	if !errors.As(err, &pluginErr) {
		return false
	}
	return strings.Contains(strings.ToLower(pluginErr.Message), "find the emoji")
}
