package detectors

import (
	"strings"
	"sync"

	"github.com/triage-ai/constitutional/internal/engine"
)

// Tone selects the register of the opening and closing lines.
type Tone string

const (
	ToneEmpathetic Tone = "empathetic"
	ToneNeutral    Tone = "neutral"
	ToneFirm       Tone = "firm"
)

const (
	maxResourcesPerResponse = 3
	ellipsis                = "..."
)

// Resource is a help line or organization offered in a safe response.
type Resource struct {
	Name        string `json:"name"`
	Contact     string `json:"contact"`
	Description string `json:"description"`
}

// SafeResponseConfig configures a SafeResponseGenerator.
type SafeResponseConfig struct {
	Tone                Tone
	MaxLength           int
	IncludeResources    bool
	IncludeAlternatives bool
}

// DefaultSafeResponseConfig returns an empathetic tone, 500-character limit,
// and resources on.
func DefaultSafeResponseConfig() SafeResponseConfig {
	return SafeResponseConfig{
		Tone:             ToneEmpathetic,
		MaxLength:        500,
		IncludeResources: true,
	}
}

var openers = map[Tone]string{
	ToneEmpathetic: "I understand this may matter to you, and I want to be genuinely helpful.",
	ToneNeutral:    "I'm not able to help with this request.",
	ToneFirm:       "I will not assist with this request.",
}

const selfHarmOpener = "It sounds like you may be going through a really difficult time, and your wellbeing matters."

var closings = map[Tone]string{
	ToneEmpathetic: "If you'd like, I'm glad to help with something else or talk through what's on your mind.",
	ToneNeutral:    "I'm happy to help with a different question.",
	ToneFirm:       "Please ask about something else.",
}

var explanations = map[engine.HarmType]string{
	engine.HarmViolence:         "I cannot provide information that could be used to hurt other people.",
	engine.HarmHateSpeech:       "I cannot provide content that demeans people because of who they are.",
	engine.HarmSelfHarm:         "I cannot provide information that could put your safety at risk, but you don't have to face this alone and help is available right now.",
	engine.HarmIllegalActivity:  "I cannot provide guidance on illegal activities or ways to evade the law.",
	engine.HarmMisinformation:   "I cannot provide content that presents false or misleading claims as fact.",
	engine.HarmExploitation:     "I cannot provide content that exploits or endangers anyone, especially children or vulnerable people.",
	engine.HarmHarassment:       "I cannot provide help with targeting or intimidating another person.",
	engine.HarmDangerousContent: "I cannot provide instructions for creating weapons or hazardous materials.",
}

const genericExplanation = "I cannot provide content that could cause harm."

var defaultResources = map[engine.HarmType][]Resource{
	engine.HarmSelfHarm: {
		{"988 Suicide & Crisis Lifeline", "Call or text 988", "free, confidential support 24/7 in the US"},
		{"Crisis Text Line", "Text HOME to 741741", "24/7 support by text"},
		{"International Association for Suicide Prevention", "https://www.iasp.info/resources/Crisis_Centres/", "crisis centres worldwide"},
	},
	engine.HarmViolence: {
		{"National Domestic Violence Hotline", "1-800-799-7233", "confidential support 24/7"},
		{"Crisis Text Line", "Text HOME to 741741", "support when things feel out of control"},
	},
	engine.HarmHateSpeech: {
		{"Anti-Defamation League", "https://www.adl.org", "resources on countering hate"},
		{"Southern Poverty Law Center", "https://www.splcenter.org", "education on hate and extremism"},
	},
	engine.HarmIllegalActivity: {
		{"LawHelp.org", "https://www.lawhelp.org", "free legal aid information"},
	},
	engine.HarmMisinformation: {
		{"FactCheck.org", "https://www.factcheck.org", "nonpartisan fact-checking"},
		{"Snopes", "https://www.snopes.com", "claim verification"},
	},
	engine.HarmExploitation: {
		{"NCMEC CyberTipline", "1-800-843-5678", "report child exploitation"},
		{"National Human Trafficking Hotline", "1-888-373-7888", "confidential help 24/7"},
	},
	engine.HarmHarassment: {
		{"Cyber Civil Rights Initiative", "844-878-2274", "helpline for online abuse"},
		{"Crisis Text Line", "Text HOME to 741741", "24/7 support by text"},
	},
	engine.HarmDangerousContent: {
		{"Poison Control", "1-800-222-1222", "immediate help with hazardous substances"},
		{"Emergency services", "911", "if anyone is in immediate danger"},
	},
}

var alternatives = map[engine.HarmType][]string{
	engine.HarmViolence: {
		"Explore conflict resolution strategies for addressing the disagreement peacefully",
		"Learn de-escalation techniques for tense situations",
		"Talk with a counselor or mediator about what is happening",
	},
	engine.HarmHateSpeech: {
		"Learn about the history and experiences of the community in question",
		"Discuss the underlying concern without targeting a group",
	},
	engine.HarmSelfHarm: {
		"Reach out to someone you trust and let them know how you are feeling",
		"Talk with a crisis counselor by calling or texting 988",
		"Explore coping strategies with a mental health professional",
	},
	engine.HarmIllegalActivity: {
		"Look into the legal options available for your situation",
		"Consult a licensed attorney or a legal aid organization",
	},
	engine.HarmMisinformation: {
		"Check the claim with established fact-checking organizations",
		"Review peer-reviewed research or official public health guidance",
		"Compare several reputable sources before drawing a conclusion",
	},
	engine.HarmExploitation: {
		"Learn how to recognize and report exploitation safely",
		"Contact a hotline that supports people at risk",
	},
	engine.HarmHarassment: {
		"Set clear boundaries and communicate them directly",
		"Use platform reporting and blocking tools",
		"Seek mediation if the conflict is ongoing",
	},
	engine.HarmDangerousContent: {
		"Learn about the chemistry or engineering topic through safe, supervised coursework",
		"Read about safety regulations for handling hazardous materials",
	},
}

var genericAlternatives = []string{
	"Rephrase the request around what you are ultimately trying to achieve",
	"Ask about the general topic in an educational context",
}

// SafeResponseGenerator builds the message that replaces blocked content.
// Resources may be added at runtime; all methods are safe for concurrent use.
type SafeResponseGenerator struct {
	cfg       SafeResponseConfig
	mu        sync.RWMutex
	resources map[engine.HarmType][]Resource
}

func NewSafeResponseGenerator(cfg SafeResponseConfig) *SafeResponseGenerator {
	if cfg.Tone == "" {
		cfg.Tone = ToneEmpathetic
	}
	if cfg.MaxLength <= len(ellipsis) {
		cfg.MaxLength = DefaultSafeResponseConfig().MaxLength
	}
	res := make(map[engine.HarmType][]Resource, len(defaultResources))
	for t, rs := range defaultResources {
		res[t] = append([]Resource(nil), rs...)
	}
	return &SafeResponseGenerator{cfg: cfg, resources: res}
}

// Generate builds an opener, an explanation keyed by the first harm type, up
// to three resources, and a closing, truncated to MaxLength. Self-harm always
// uses the supportive opener regardless of the configured tone.
func (g *SafeResponseGenerator) Generate(types []engine.HarmType) string {
	var primary engine.HarmType
	if len(types) > 0 {
		primary = types[0]
	}
	selfHarm := containsHarm(types, engine.HarmSelfHarm)

	tone := g.cfg.Tone
	opener, ok := openers[tone]
	if !ok {
		tone = ToneNeutral
		opener = openers[tone]
	}
	if selfHarm {
		tone = ToneEmpathetic
		opener = selfHarmOpener
		primary = engine.HarmSelfHarm
	}

	explanation, ok := explanations[primary]
	if !ok {
		explanation = genericExplanation
	}

	var b strings.Builder
	b.WriteString(opener)
	b.WriteString(" ")
	b.WriteString(explanation)

	if g.cfg.IncludeResources {
		if rs := g.Resources(primary); len(rs) > 0 {
			b.WriteString("\n\nHere are some resources that can help:")
			for i, r := range rs {
				if i == maxResourcesPerResponse {
					break
				}
				b.WriteString("\n- ")
				b.WriteString(r.Name)
				b.WriteString(": ")
				b.WriteString(r.Contact)
				if r.Description != "" {
					b.WriteString(" (")
					b.WriteString(r.Description)
					b.WriteString(")")
				}
			}
		}
	}

	if g.cfg.IncludeAlternatives {
		b.WriteString("\n\nYou might instead:")
		for _, alt := range g.Alternatives(types) {
			b.WriteString("\n- ")
			b.WriteString(alt)
		}
	}

	b.WriteString("\n\n")
	b.WriteString(closings[tone])
	return truncate(b.String(), g.cfg.MaxLength)
}

// Alternatives returns two or three reframings for the first harm type.
func (g *SafeResponseGenerator) Alternatives(types []engine.HarmType) []string {
	if len(types) > 0 {
		if alts, ok := alternatives[types[0]]; ok {
			return append([]string(nil), alts...)
		}
	}
	return append([]string(nil), genericAlternatives...)
}

// AddResource registers an extra resource for a harm type.
func (g *SafeResponseGenerator) AddResource(t engine.HarmType, r Resource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resources[t] = append(g.resources[t], r)
}

// Resources returns a copy of the resources registered for a harm type.
func (g *SafeResponseGenerator) Resources(t engine.HarmType) []Resource {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Resource(nil), g.resources[t]...)
}

func containsHarm(types []engine.HarmType, want engine.HarmType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

// truncate limits s to limit runes, counting the ellipsis within the limit.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimRight(string(runes[:limit-len(ellipsis)]), " \n") + ellipsis
}
