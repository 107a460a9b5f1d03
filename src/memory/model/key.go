package model

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Key scopes every store operation to a single agent/user pair.
type Key struct {
	AgentID string `json:"agent_id"`
	UserID  string `json:"user_id"`
}

// NewKey trims both identifiers.
func NewKey(agentID, userID string) Key {
	return Key{AgentID: strings.TrimSpace(agentID), UserID: strings.TrimSpace(userID)}
}

// Valid reports whether both identifiers are present.
func (k Key) Valid() bool {
	return strings.TrimSpace(k.AgentID) != "" && strings.TrimSpace(k.UserID) != ""
}

// Validate returns ErrInvalidKey when either identifier is missing.
func (k Key) Validate() error {
	if k.Valid() {
		return nil
	}
	return fmt.Errorf("%w: agent=%q user=%q", ErrInvalidKey, k.AgentID, k.UserID)
}

// String joins the escaped identifiers with ':' so distinct pairs never
// share a string form.
func (k Key) String() string {
	return url.QueryEscape(k.AgentID) + ":" + url.QueryEscape(k.UserID)
}

// LogValue groups the identifiers under one slog attribute.
func (k Key) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("agent_id", k.AgentID),
		slog.String("user_id", k.UserID),
	)
}
