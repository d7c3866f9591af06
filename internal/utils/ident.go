package utils

import (
	"fmt"
	"regexp"
)

// maxIdentifierLength bounds what may be interpolated into DDL text.
// 128 matches the most permissive vendor limit (SQL Server, modern
// Oracle); stricter vendors reject longer names at execution anyway.
const maxIdentifierLength = 128

// identifierPattern is the allow-listed grammar for object names that get
// interpolated into DDL text. Identifiers must start with a letter or
// underscore and may contain letters, digits, underscores and dollar signs.
// Quoted/exotic identifiers are rejected on purpose: the engine refuses to
// synchronize objects it cannot name safely.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ValidateIdentifier reports whether name is safe to interpolate into a DDL
// statement. SQL grammars do not allow bound parameters in identifier
// position, so every name coming from a catalog or from user input passes
// through here before it is placed into statement text.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier is empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier %q exceeds %d characters", name, maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("identifier %q contains characters outside the allowed set [A-Za-z0-9_$]", name)
	}
	return nil
}
