package companion

import (
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/go-companion/src/memory"
	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

const (
	replyTemperature = 0.6
	replyMaxTokens   = 150
)

// systemPrompt renders the persona and recalled context for one reply.
func systemPrompt(agent model.AgentProfile, mc memory.Context) string {
	var sb strings.Builder
	sb.Grow(2048)
	fmt.Fprintf(&sb, "You are %s. %s\n\n", agent.Name, agent.Description)
	fmt.Fprintf(&sb, "Your personality: %s\n\n", agent.Instructions)
	sb.WriteString("You must strictly follow these rules:\n")
	fmt.Fprintf(&sb, "1. Stay in character as %s at all times.\n", agent.Name)
	sb.WriteString("2. Use the personality traits and speaking style as described above.\n")
	sb.WriteString("3. Use the provided chat history and relevant past information for context, but don't reference them explicitly.\n")
	sb.WriteString("4. Respond directly to the human's prompt without repeating or rephrasing it.\n")
	fmt.Fprintf(&sb, "5. Do not use any prefix before your response (like %q).\n", agent.Name+":")
	sb.WriteString("6. Keep responses concise but helpful, under 150 words when possible.\n")

	if mc.RecentHistory != "" {
		sb.WriteString("\nRecent conversation context:\n")
		sb.WriteString(mc.RecentHistory)
		sb.WriteString("\n")
	}
	if len(mc.RelevantPast) > 0 {
		sb.WriteString("\nRelevant past information:\n")
		sb.WriteString(model.JoinLines(mc.RelevantPast))
		sb.WriteString("\n")
	}
	return sb.String()
}
