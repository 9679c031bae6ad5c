package commands

import (
	"strings"
)

// Placeholders recognised in command templates.
const (
	PlaceholderEncodedPhysicalID = "ENCODED_PHYSICAL_RESOURCE_ID"
	PlaceholderPhysicalID        = "PHYSICAL_RESOURCE_ID"
	PlaceholderRegion            = "AWS_REGION"
)

// Substitution holds the values placed into a command template.
type Substitution struct {
	PhysicalID string
	Region     string
}

// Render fills the placeholders of tmpl in a single pass and appends args.
func Render(tmpl string, sub Substitution, args []string) string {
	r := strings.NewReplacer(
		PlaceholderEncodedPhysicalID, EncodeURIComponent(sub.PhysicalID),
		PlaceholderPhysicalID, sub.PhysicalID,
		PlaceholderRegion, sub.Region,
	)
	cmd := r.Replace(tmpl)
	if len(args) > 0 {
		cmd += " " + strings.Join(args, " ")
	}
	return cmd
}

// EncodeURIComponent escapes s the way browsers' encodeURIComponent does: everything except
// ASCII letters, digits and -_.!~*'() is percent-encoded as UTF-8.
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
