package api

import "strings"

// legacyKeywords maps v4 API keyword spellings to their v6 canonical
// equivalents, per SPEC_FULL's SUPPLEMENTED FEATURES v4-compatibility
// section.
var legacyKeywords = map[string]string{
	"preference": "local-preference",
}

// TranslateLegacy rewrites a v4-style command line into the canonical v6
// grammar dispatch expects:
//   - bare "announce route ..." / "withdraw route ..." with no leading
//     "neighbor <selector>" is rewritten to target all peers ("neighbor *
//     ..."), since v4 allowed a global mutation with no selector and v6
//     requires one explicitly.
//   - legacy attribute keyword spellings ("preference") are renamed to
//     their v6 names ("local-preference").
//
// Lines already in canonical form pass through unchanged (translation is
// idempotent), so the dispatcher can run every incoming line through this
// pass unconditionally instead of sniffing an API version first.
func TranslateLegacy(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return line
	}

	if fields[0] == "announce" || fields[0] == "withdraw" {
		fields = append([]string{"neighbor", "*"}, fields...)
	}

	for i, f := range fields {
		if repl, ok := legacyKeywords[strings.ToLower(f)]; ok {
			fields[i] = repl
		}
	}

	return strings.Join(fields, " ")
}
