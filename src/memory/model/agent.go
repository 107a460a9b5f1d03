package model

// AgentProfile is the persona an agent was created with.
type AgentProfile struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	Instructions string `json:"instructions" yaml:"instructions"`
	// Seed is example dialogue, one exchange per SeedDelimiter-separated chunk.
	Seed string `json:"seed,omitempty" yaml:"seed"`
}
