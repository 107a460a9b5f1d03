package model

import (
	"fmt"
	"strings"
	"time"
)

// Exchange is one stored human/agent turn.
type Exchange struct {
	Key       Key
	Text      string
	Timestamp time.Time
}

// FormatExchange renders a turn the way it is written to memory.
func FormatExchange(prompt, agentName, reply string) string {
	return fmt.Sprintf("Human: %s\n%s: %s", prompt, agentName, reply)
}

// ExchangePrefix is the reply-less form of FormatExchange. Its embedding is
// computed while the reply is still being generated.
func ExchangePrefix(prompt, agentName string) string {
	return strings.TrimRight(FormatExchange(prompt, agentName, ""), " ")
}

// JoinLines joins exchanges oldest first, one per line.
func JoinLines(texts []string) string {
	return strings.Join(texts, "\n")
}
