package model

// ProjectMetaEntry is a single key/value row in a project's metadata table
// (spec §3 "ProjectMeta"). The reserved key "last_seen" holds the epoch-ms
// timestamp of the most recent orient call.
type ProjectMetaEntry struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updatedAt"`
}

// LastSeenKey is the reserved ProjectMeta key tracked by orient (spec §3, §4.9).
const LastSeenKey = "last_seen"
