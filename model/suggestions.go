package model

// SeedPrompts are offered while the transcript is still empty.
var SeedPrompts = []string{
	"Summarize the documents I uploaded today",
	"What does the knowledge base say about onboarding?",
	"Which sources mention the quarterly roadmap?",
	"Explain the main takeaway in plain words",
	"List open questions from the latest meeting notes",
	"Compare the two most recent policy drafts",
}
