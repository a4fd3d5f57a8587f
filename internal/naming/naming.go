// Package naming picks non-colliding display names for entries placed in a folder.
package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var suffixPattern = regexp.MustCompile(`^(.*) \((\d+)\)$`)

// Item is a name to place, with folders never having an extension split off.
type Item struct {
	Name     string
	IsFolder bool
}

// GenerateUniqueName returns candidate if no existing name matches it
// case-insensitively, otherwise "base (k).ext" for the smallest free k. When
// the base already ends in " (n)", counting resumes at n+1 on the stripped base.
func GenerateUniqueName(candidate string, existing []string) string {
	return unique(Item{Name: candidate}, toSet(existing))
}

// GenerateUniqueNames resolves names in input order. Each result joins the
// exclusion set, so names inside the batch never collide with each other.
func GenerateUniqueNames(items []Item, existing []string) []string {
	taken := toSet(existing)
	out := make([]string, len(items))
	for i, item := range items {
		name := unique(item, taken)
		taken[strings.ToLower(name)] = struct{}{}
		out[i] = name
	}
	return out
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}

func unique(item Item, taken map[string]struct{}) string {
	if _, clash := taken[strings.ToLower(item.Name)]; !clash {
		return item.Name
	}

	base, ext := item.Name, ""
	if !item.IsFolder {
		base, ext = splitExt(item.Name)
	}

	start := 1
	if m := suffixPattern.FindStringSubmatch(base); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			base = m[1]
			start = n + 1
		}
	}

	for k := start; ; k++ {
		name := fmt.Sprintf("%s (%d)%s", base, k, ext)
		if _, clash := taken[strings.ToLower(name)]; !clash {
			return name
		}
	}
}

// splitExt splits at the last dot. Names whose only dot is leading, such as
// ".env", have no extension.
func splitExt(name string) (string, string) {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}
