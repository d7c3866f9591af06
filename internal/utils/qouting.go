package utils

import (
	"fmt"
	"strings"
)

// QuoteIdentifier quotes an identifier based on the specified SQL dialect.
// Handles basic escaping for the quote character itself within the name.
func QuoteIdentifier(name, dialect string) string {
	dialect = strings.ToLower(dialect)
	switch dialect {
	case "mysql":
		// Escape backticks within the name
		return fmt.Sprintf("`%s`", strings.ReplaceAll(name, "`", "``"))
	case "sqlserver":
		// Bracket quoting; only the closing bracket needs escaping.
		return fmt.Sprintf("[%s]", strings.ReplaceAll(name, "]", "]]"))
	case "postgres", "sqlite", "oracle":
		return fmt.Sprintf("\"%s\"", strings.ReplaceAll(name, "\"", "\"\""))
	default:
		// Fallback for unknown dialects: double quotes (ANSI SQL standard).
		return fmt.Sprintf("\"%s\"", strings.ReplaceAll(name, "\"", "\"\""))
	}
}

// UnquoteIdentifier removes dialect-specific quotes from an identifier and
// unescapes quote characters within the name. Input that is not quoted in
// the way the dialect expects is returned unchanged.
func UnquoteIdentifier(quotedName, dialect string) string {
	name := strings.TrimSpace(quotedName)
	if len(name) < 2 {
		return name
	}

	firstChar := name[0]
	lastChar := name[len(name)-1]
	var quoteFound bool
	var escapeSequence, originalChar string

	switch strings.ToLower(dialect) {
	case "mysql":
		if firstChar == '`' && lastChar == '`' {
			quoteFound = true
			escapeSequence = "``"
			originalChar = "`"
		}
	case "sqlserver":
		if firstChar == '[' && lastChar == ']' {
			quoteFound = true
			escapeSequence = "]]"
			originalChar = "]"
		}
	default:
		// postgres, sqlite, oracle and unknown dialects all use ANSI double quotes.
		if firstChar == '"' && lastChar == '"' {
			quoteFound = true
			escapeSequence = "\"\""
			originalChar = "\""
		}
	}

	if quoteFound {
		unquotedContent := name[1 : len(name)-1]
		return strings.ReplaceAll(unquotedContent, escapeSequence, originalChar)
	}

	return name
}
