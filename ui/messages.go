package ui

import "gefen/model"

type snapshotMsg struct {
	Snapshot model.Snapshot
}

// feedClosedMsg is delivered once the snapshot feed ends.
type feedClosedMsg struct{}

type markdownRenderedMsg struct {
	MessageID uint64
	Width     int
	Rendered  string
}

type clipboardMsg struct {
	Err error
}
