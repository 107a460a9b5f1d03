package personality

import (
	"fmt"
	"strings"
	"time"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// TraitType classifies a personality trait.
type TraitType string

const (
	Interest      TraitType = "interest"
	Opinion       TraitType = "opinion"
	Behavior      TraitType = "behavior"
	Communication TraitType = "communication"
	Emotional     TraitType = "emotional"
)

// Valid reports whether t is one of the known trait types.
func (t TraitType) Valid() bool {
	switch t {
	case Interest, Opinion, Behavior, Communication, Emotional:
		return true
	}
	return false
}

const (
	// PrefixLength is how many characters of content identify a trait.
	PrefixLength = 40
	// SourceLength bounds the stored source snippet.
	SourceLength = 200
	// ProfileSource marks traits extracted from an agent's declared profile.
	ProfileSource = "Profile data"
)

// Trait is one confidence-scored observation about an agent's personality,
// scoped to the user who talked to it.
type Trait struct {
	AgentID    string    `json:"agentId" bson:"agent_id"`
	UserID     string    `json:"userId" bson:"user_id"`
	Type       TraitType `json:"type" bson:"type"`
	Content    string    `json:"content" bson:"content"`
	Confidence float64   `json:"confidence" bson:"confidence"`
	Source     string    `json:"source" bson:"source"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updated_at"`
}

func (t Trait) Key() model.Key { return model.Key{AgentID: t.AgentID, UserID: t.UserID} }

// Prefix is the identity portion of the trait content.
func (t Trait) Prefix() string { return ContentPrefix(t.Content) }

// Validate checks a trait before it is written.
func (t Trait) Validate() error {
	if err := t.Key().Validate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return fmt.Errorf("unknown trait type %q", t.Type)
	}
	if strings.TrimSpace(t.Content) == "" {
		return fmt.Errorf("empty trait content")
	}
	if t.Confidence <= 0 || t.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", t.Confidence)
	}
	return nil
}

// ContentPrefix returns the first PrefixLength characters of content.
func ContentPrefix(content string) string {
	return truncate(content, PrefixLength)
}

// Snippet returns the first SourceLength characters of text.
func Snippet(text string) string {
	return truncate(text, SourceLength)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Outcome is what a merge did to the store.
type Outcome int

const (
	// Inserted means no equivalent trait existed.
	Inserted Outcome = iota
	// Raised means an equivalent trait had its confidence raised.
	Raised
	// Kept means an equivalent trait already had equal or higher confidence.
	Kept
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Raised:
		return "raised"
	default:
		return "kept"
	}
}
