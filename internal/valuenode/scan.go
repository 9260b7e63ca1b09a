package valuenode

import (
	"path/filepath"
	"strings"

	"curiodb/internal/command"
)

// scanOver implements the stateless, single-pass SCAN family used by
// HSCAN/SSCAN: the cursor argument is ignored and always returns "0",
// trading Redis's incremental-rehash-safe cursor semantics for a simpler,
// always-complete-in-one-round contract — a deliberate, documented
// divergence (see DESIGN.md) rather than a partial Redis reimplementation.
func scanOver(items []string, args []string) command.Reply {
	pattern := ""
	for i := 0; i < len(args); i++ {
		if strings.EqualFold(args[i], "MATCH") && i+1 < len(args) {
			pattern = args[i+1]
			i++
		}
	}

	filtered := items
	if pattern != "" {
		filtered = nil
		for _, it := range items {
			if ok, _ := filepath.Match(pattern, it); ok {
				filtered = append(filtered, it)
			}
		}
	}

	return command.Array(command.Bulk("0"), command.BulkStrings(filtered))
}
