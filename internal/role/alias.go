package role

import (
	"log/slog"
	"sort"
	"sync"
)

// alias maps a deprecated subagent name to its canonical role and the
// mode baked into that alias.
type alias struct {
	role string
	mode string
}

// aliases is the exact legacy consolidation table: pre-council-refactor
// agent names collapsed into today's drafter/critic/planner/synthesizer
// roles with a mode fixed by the alias.
var aliases = map[string]alias{
	"implementer":   {"drafter", "impl"},
	"architect":     {"drafter", "arch"},
	"test-designer": {"drafter", "test"},
	"reviewer":      {"critic", "review"},
	"red-team":      {"critic", "security"},
	"assessor":      {"planner", "assess"},
	"shipper":       {"synthesizer", ""},
}

var (
	warnedMu sync.Mutex
	warned   = make(map[string]bool)
)

// AliasNames returns every deprecated subagent name the registry accepts,
// sorted, so callers can advertise them alongside canonical role names.
func AliasNames() []string {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveAlias returns (canonical role, default mode, true) if name is a
// deprecated alias, emitting a one-time-per-process deprecation notice,
// or ("", "", false) if name is not an alias.
func resolveAlias(name string) (canonical string, mode string, ok bool) {
	a, ok := aliases[name]
	if !ok {
		return "", "", false
	}

	warnedMu.Lock()
	shouldWarn := !warned[name]
	if shouldWarn {
		warned[name] = true
	}
	warnedMu.Unlock()

	if shouldWarn {
		slog.Warn("role: deprecated subagent name, use canonical role instead",
			"deprecated", name, "canonical", a.role, "mode", a.mode)
	}

	return a.role, a.mode, true
}
