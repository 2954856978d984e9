package reconcile

import "strings"

// FQName prefixes name with the partition unless it is already fully
// qualified. The empty string passes through untouched: it is the
// sentinel for clearing a reference and must never gain a prefix.
func FQName(partition, name string) string {
	if name == "" || strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + partition + "/" + name
}

// FQNames qualifies every name in the list. A nil list stays nil so that
// "do not manage" survives qualification.
func FQNames(partition string, names []string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, FQName(partition, name))
	}
	return out
}
