package realtime

import "strings"

// Streams served by the daemon.
const (
	// StreamPush carries received push notifications and action updates for one owner.
	StreamPush = "push"
	// StreamSync carries the report of each synchronisation pass.
	StreamSync = "sync"
	// StreamConnectivity carries reachability transitions.
	StreamConnectivity = "connectivity"
)

// DefaultStreams lists every stream a client may subscribe to.
var DefaultStreams = []string{StreamPush, StreamSync, StreamConnectivity}

// NormalizeStreams lowercases and trims names, dropping blanks and duplicates. Order is kept.
func NormalizeStreams(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = normalizeStream(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func normalizeStream(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
