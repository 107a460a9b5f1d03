package personality

import "fmt"

const (
	analysisTemperature = 0.7
	extractMaxTokens    = 1000
	analyzeMaxTokens    = 500
)

const traitFormat = `Format as JSON: {"traits":[{"type": "interest", "content": "trait description", "confidence": 0.9}]}`

const extractSystemPrompt = `You are an expert personality analyzer. Extract personality traits from this AI companion profile.
Identify key traits, interests, opinions, and behaviors.
Use only the types "interest", "opinion", "behavior", "communication" or "emotional".
` + traitFormat

func analyzeSystemPrompt(agentName string) string {
	return fmt.Sprintf(`You are an expert personality analyzer. Extract only clear personality traits from this conversation with %s.
Categorize them as "interest", "opinion", "behavior", "communication", or "emotional".
Focus on specific, unique traits that reveal core personality, not trivial details.
Only return traits you have high confidence in.
%s`, agentName, traitFormat)
}

func profileSystemPrompt(agentName string) string {
	return fmt.Sprintf(`You're analyzing an AI companion named %s.

Based on their base personality and extracted traits, create a detailed personality profile including:

1. Core personality traits (5-7 traits)
2. Communication style
3. Interests and preferences
4. Opinions and beliefs
5. Behavioral patterns
6. Emotional tendencies

Format your analysis as JSON with this structure:
{
  "coreTraits": ["trait1", "trait2"],
  "communicationStyle": "Detailed description",
  "interests": ["interest1", "interest2"],
  "opinions": {"topic1": "opinion on topic1"},
  "behavioralPatterns": ["pattern1", "pattern2"],
  "emotionalTendencies": ["tendency1", "tendency2"]
}`, agentName)
}

func profileUserPrompt(instructions string, traitsJSON []byte) string {
	return fmt.Sprintf("Base personality:\n%s\n\nExtracted traits:\n%s", instructions, traitsJSON)
}

func extractUserPrompt(name, description, instructions, seed string) string {
	return fmt.Sprintf("Name: %s\nDescription: %s\nInstructions (Personality): %s\nExample Conversations: %s",
		name, description, instructions, seed)
}
