package testutil

import "gefen/provider"

// TestHistory returns a short prior conversation for testing
func TestHistory() []provider.Turn {
	return []provider.Turn{
		{Role: provider.RoleUser, Content: "What does the onboarding guide say?"},
		{Role: provider.RoleAssistant, Content: "It covers accounts, tooling and the first week."},
	}
}

// HebrewReply is a multi-byte reply used to check rune-safe reveals
const HebrewReply = "שלום! מצאתי כמה מסמכים רלוונטיים."

// ShortPool returns a small deterministic pool for canned source tests
func ShortPool() []string {
	return []string{"alpha", "beta", "gamma"}
}
