package config

import (
	"gefen/model"
	"gefen/provider"
)

const (
	DefaultIntervalMS     = 15
	DefaultStep           = 1
	DefaultReplyTimeoutMS = 30000
	DefaultHistoryLimit   = model.DefaultHistoryLimit
)

// Default returns the built-in configuration, the lowest layer.
func Default() *Config {
	return &Config{
		DataDirectory: "~/.local/share/gefen",
		Reveal: RevealConfig{
			IntervalMS: DefaultIntervalMS,
			Step:       DefaultStep,
		},
		Responses: ResponsesConfig{
			Pool:           append([]string(nil), provider.DefaultReplies...),
			ReplyTimeoutMS: DefaultReplyTimeoutMS,
			ErrorText:      model.DefaultErrorText,
		},
		Chat: ChatConfig{
			SeedPrompts:  append([]string(nil), model.SeedPrompts...),
			HistoryLimit: DefaultHistoryLimit,
		},
	}
}

func GenerateSettingsTemplate() string {
	return `# Gefen Configuration
# Location: ~/.config/gefen/settings.toml
# This file uses TOML format: https://toml.io
# Every key can also be set through a GEFEN_* environment variable or .env file.

# Directory for the debug log
data_directory = "~/.local/share/gefen"

# Write a debug log to <data_directory>/debug.log
debug = false

[reveal]
# Delay between two revealed steps of a reply, in milliseconds
interval_ms = 15

# Characters revealed per step
step = 1

[responses]
# Simulated thinking time before a reply, in milliseconds
latency_min_ms = 0
latency_max_ms = 0

# Fixed seed for reply selection (0 picks a random seed)
seed = 0

# Give up waiting for a reply after this many milliseconds
reply_timeout_ms = 30000

# Text shown when no reply could be produced
# error_text = "Sorry, I couldn't put together an answer this time. Please try again."

# Replies to pick from (leave unset for the built-in ones)
# pool = ["First reply", "Second reply"]

[chat]
# Prior messages handed to the reply source
history_limit = 20

# Prompts suggested while the conversation is empty
# seed_prompts = ["Summarize the documents I uploaded today"]
`
}
