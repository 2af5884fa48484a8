package domain

import "strings"

// Tokenize lower-cases a query and splits it on whitespace.
func Tokenize(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// MatchesTokens reports whether every token occurs, case-insensitively, in at
// least one searchable field (name, description or a category).
func (p Product) MatchesTokens(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}

	fields := make([]string, 0, 2+len(p.Categories))
	fields = append(fields, strings.ToLower(p.Name), strings.ToLower(p.Description))
	for _, c := range p.Categories {
		fields = append(fields, strings.ToLower(c))
	}

	for _, token := range tokens {
		token = strings.ToLower(token)
		found := false
		for _, f := range fields {
			if strings.Contains(f, token) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
