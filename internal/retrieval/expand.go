// File path: internal/retrieval/expand.go
package retrieval

import "strings"

// maxExpansions caps how many synonym groups can widen a single query.
const maxExpansions = 3

// synonymGroups maps domain vocabulary to related terms; a query that
// touches one member of a group is widened with the others.
var synonymGroups = [][]string{
	{"auth", "authentication", "login", "session", "credential"},
	{"db", "database", "storage", "persistence", "repository"},
	{"api", "endpoint", "handler", "route", "controller"},
	{"test", "spec", "fixture", "mock"},
	{"config", "configuration", "settings", "env"},
	{"user", "account", "profile"},
	{"payment", "billing", "invoice", "subscription"},
	{"queue", "worker", "job", "task", "scheduler"},
	{"cache", "memoize", "redis"},
	{"error", "exception", "failure", "retry"},
}

// ExpandQuery appends synonym-group members for terms present in the
// query, up to maxExpansions groups. The original query text always
// comes first so its tokens keep their weight in ranking.
func ExpandQuery(query string) string {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return query
	}
	present := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		present[token] = struct{}{}
	}

	var additions []string
	groupsUsed := 0
	for _, group := range synonymGroups {
		if groupsUsed >= maxExpansions {
			break
		}
		matched := false
		for _, term := range group {
			if _, ok := present[term]; ok {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		groupsUsed++
		for _, term := range group {
			if _, ok := present[term]; ok {
				continue
			}
			present[term] = struct{}{}
			additions = append(additions, term)
		}
	}
	if len(additions) == 0 {
		return query
	}
	return query + " " + strings.Join(additions, " ")
}
