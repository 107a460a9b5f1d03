package personality

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedOutput marks model output that is not the JSON shape asked for.
var ErrMalformedOutput = errors.New("malformed model output")

// Candidate is one trait proposed by the classification call.
type Candidate struct {
	Type       TraitType
	Content    string
	Confidence float64
}

type rawCandidate struct {
	Type       *string  `json:"type"`
	Content    *string  `json:"content"`
	Confidence *float64 `json:"confidence"`
}

// ParseCandidates decodes {"traits":[...]}. Entries missing a field, with an
// unknown type or an out-of-range confidence are dropped and counted.
func ParseCandidates(raw string) ([]Candidate, int, error) {
	var doc struct {
		Traits []json.RawMessage `json:"traits"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if doc.Traits == nil {
		return nil, 0, fmt.Errorf("%w: missing traits array", ErrMalformedOutput)
	}

	out := make([]Candidate, 0, len(doc.Traits))
	dropped := 0
	for _, item := range doc.Traits {
		var rc rawCandidate
		if err := json.Unmarshal(item, &rc); err != nil || rc.Type == nil || rc.Content == nil || rc.Confidence == nil {
			dropped++
			continue
		}
		c := Candidate{
			Type:       TraitType(strings.ToLower(strings.TrimSpace(*rc.Type))),
			Content:    strings.TrimSpace(*rc.Content),
			Confidence: *rc.Confidence,
		}
		if !c.Type.Valid() || c.Content == "" || c.Confidence <= 0 || c.Confidence > 1 {
			dropped++
			continue
		}
		out = append(out, c)
	}
	return out, dropped, nil
}

// Profile is the synthesized personality view.
type Profile struct {
	CoreTraits          []string          `json:"coreTraits"`
	CommunicationStyle  string            `json:"communicationStyle"`
	Interests           []string          `json:"interests"`
	Opinions            map[string]string `json:"opinions"`
	BehavioralPatterns  []string          `json:"behavioralPatterns"`
	EmotionalTendencies []string          `json:"emotionalTendencies"`
}

func placeholder(core, style string) Profile {
	return Profile{
		CoreTraits:          []string{core},
		CommunicationStyle:  style,
		Interests:           []string{},
		Opinions:            map[string]string{},
		BehavioralPatterns:  []string{},
		EmotionalTendencies: []string{},
	}
}

// LearningProfile is returned while no traits are stored.
func LearningProfile() Profile {
	return placeholder("Still learning...", "Keep chatting to discover more")
}

// AnalyzingProfile is returned when synthesis output cannot be used.
func AnalyzingProfile() Profile {
	return placeholder("Still analyzing...", "Analyzing communication patterns")
}

// UnavailableProfile is returned when the inputs cannot be loaded.
func UnavailableProfile() Profile {
	return placeholder("Analysis unavailable", "Information not available at this time")
}

// ParseProfile decodes a synthesized profile. coreTraits and
// communicationStyle are required; the rest default to empty.
func ParseProfile(raw string) (Profile, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripFences(raw)), &fields); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	for _, required := range []string{"coreTraits", "communicationStyle"} {
		if _, ok := fields[required]; !ok {
			return Profile{}, fmt.Errorf("%w: missing %s", ErrMalformedOutput, required)
		}
	}
	var p Profile
	if err := json.Unmarshal([]byte(stripFences(raw)), &p); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if len(p.CoreTraits) == 0 {
		return Profile{}, fmt.Errorf("%w: empty coreTraits", ErrMalformedOutput)
	}
	if p.Interests == nil {
		p.Interests = []string{}
	}
	if p.Opinions == nil {
		p.Opinions = map[string]string{}
	}
	if p.BehavioralPatterns == nil {
		p.BehavioralPatterns = []string{}
	}
	if p.EmotionalTendencies == nil {
		p.EmotionalTendencies = []string{}
	}
	return p, nil
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
