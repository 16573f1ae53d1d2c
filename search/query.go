package search

import (
	"strconv"
	"strings"
)

const DefaultLimit = 10

// Query represents the structured parameters of a message search.
// It decouples the raw user input from what the index needs.
type Query struct {
	RawInput string // The original input
	Terms    string // The actual text to search in the message bodies
	Room     string // Restricts the search to one room when set
	Sender   string // Restricts the search to one author when set
	Limit    int    // Number of results
}

// NewQuery parses a raw string to extract command-line style arguments.
// Example: deploy friday --room Technology --from alice --limit 5
func NewQuery(input string) Query {
	query := Query{
		RawInput: input,
		Limit:    DefaultLimit,
	}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		// Handle flags like --room Technology or --limit 5
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			value := parts[i+1]
			switch strings.TrimPrefix(part, "--") {
			case "room":
				query.Room = value
			case "from":
				query.Sender = value
			case "limit":
				if n, err := strconv.Atoi(value); err == nil && n > 0 {
					query.Limit = n
				}
			}
			i++ // Skip the value part in next iteration
			continue
		}

		// Slash commands typed in a client are not search terms
		if !strings.HasPrefix(part, "/") {
			textTerms = append(textTerms, part)
		}
	}

	query.Terms = strings.Join(textTerms, " ")
	return query
}

// IsEmpty is true when the query would match everything.
func (q Query) IsEmpty() bool {
	return q.Terms == "" && q.Room == "" && q.Sender == ""
}
