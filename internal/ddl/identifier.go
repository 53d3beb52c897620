package ddl

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const maxIdentifierLen = 128

// Table name prefixes owned by the store itself: the layer catalog and the
// SQLite internal tables.
var reservedPrefixes = []string{"vt_", "sqlite_"}

// reservedTables are table names a layer may not take.
var reservedTables = []string{"goose_db_version"}

// ValidateIdentifier checks that name can be used unquoted: a letter or
// underscore followed by letters, digits or underscores, at most 128 bytes.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("name must be at most %d characters", maxIdentifierLen)
	}
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("name must match [a-zA-Z_][a-zA-Z0-9_]*")
	}
	return nil
}

// ValidateLayerName checks a layer name, which doubles as the table name.
// Names are compared case-insensitively against the store's own tables.
func ValidateLayerName(name string) error {
	if err := ValidateIdentifier(name); err != nil {
		return err
	}
	lower := strings.ToLower(name)
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(lower, p) {
			return fmt.Errorf("name must not start with %q", p)
		}
	}
	for _, t := range reservedTables {
		if lower == t {
			return fmt.Errorf("name %q is reserved", name)
		}
	}
	return nil
}

// QuoteIdentifier double-quotes name, doubling embedded quotes. Layer and
// field names always go through it, so field names need not be plain
// identifiers.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
