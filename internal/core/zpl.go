package core

import "strings"

// ZPLStartFormat opens every ZPL label.
const ZPLStartFormat = "^XA"

// ValidZPL is a shallow sniff, not a parser. It only rejects payloads
// that cannot be ZPL at all.
func ValidZPL(content string) bool {
	return strings.Contains(content, ZPLStartFormat)
}
