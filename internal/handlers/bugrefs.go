package handlers

import (
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// BugRefs are the bug ids a commit message references, per keyword, in
// first-seen order.
type BugRefs struct {
	Resolves []string
	Related  []string
	Reverted []string
}

func (b BugRefs) Empty() bool {
	return len(b.Resolves) == 0 && len(b.Related) == 0 && len(b.Reverted) == 0
}

var (
	bugLinePattern  = regexp.MustCompile(`(?im)^[ \t]*(resolves|related|reverted)[ \t]*:[ \t]*(.*)$`)
	bugTokenPattern = regexp.MustCompile(`(?i)^(?:(?:rhbz|bz|bug)#?|#)(\d+)$`)
)

// ParseBugRefs scans "Resolves:", "Related:" and "Reverted:" lines of a
// commit message. Tokens are separated by commas or whitespace and must
// carry a bug, bz, rhbz or # prefix; anything else is ignored.
func ParseBugRefs(message string) BugRefs {
	seen := map[string]mapset.Set[string]{
		"resolves": mapset.NewThreadUnsafeSet[string](),
		"related":  mapset.NewThreadUnsafeSet[string](),
		"reverted": mapset.NewThreadUnsafeSet[string](),
	}
	var out BugRefs
	for _, m := range bugLinePattern.FindAllStringSubmatch(message, -1) {
		keyword := strings.ToLower(m[1])
		tokens := strings.FieldsFunc(m[2], func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\r'
		})
		for _, tok := range tokens {
			id := bugTokenPattern.FindStringSubmatch(tok)
			if id == nil || !seen[keyword].Add(id[1]) {
				continue
			}
			switch keyword {
			case "resolves":
				out.Resolves = append(out.Resolves, id[1])
			case "related":
				out.Related = append(out.Related, id[1])
			case "reverted":
				out.Reverted = append(out.Reverted, id[1])
			}
		}
	}
	return out
}
