package host

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scstools/compellent/shared/logger"
)

// DefaultMultipathConfig is the multipath configuration file rewritten by
// UpdateAliasConfig.
const DefaultMultipathConfig = "/etc/multipath.conf"

// aliasBlockKeyword introduces the single top-level configuration block that
// holds the WWID to alias bindings.
const aliasBlockKeyword = "multipaths"

// lineToken classifies a configuration line while scanning brace structure.
type lineToken int

const (
	tokenVerbatim lineToken = iota
	tokenBlockStart
	tokenBlockEnd
)

// tokenizeLine classifies a single configuration line. Comments and blank
// lines are always verbatim regardless of their content, and a line whose
// braces balance out, such as "blacklist { }", is verbatim too since it
// leaves the nesting depth unchanged.
func tokenizeLine(line string) lineToken {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return tokenVerbatim
	}

	delta := braceDelta(trimmed)
	if delta > 0 {
		return tokenBlockStart
	}

	if delta < 0 {
		return tokenBlockEnd
	}

	return tokenVerbatim
}

// braceDelta returns the nesting depth change a line causes.
func braceDelta(line string) int {
	return strings.Count(line, "{") - strings.Count(line, "}")
}

// isInlineAliasBlock reports whether a line is an empty one-line multipaths
// block, e.g. "multipaths { }".
func isInlineAliasBlock(trimmed string) bool {
	rest, found := strings.CutPrefix(trimmed, aliasBlockKeyword)
	if !found {
		return false
	}

	rest = strings.TrimSpace(rest)

	return rest == "{}" || rest == "{ }"
}

// aliasBlockBody renders the body of the multipaths block from the given
// table, one multipath sub-block per WWID in sorted order so that repeated
// renders of the same table are byte-identical.
func aliasBlockBody(table map[string]string) []string {
	wwids := make([]string, 0, len(table))
	for wwid := range table {
		wwids = append(wwids, wwid)
	}

	sort.Strings(wwids)

	var lines []string
	for _, wwid := range wwids {
		lines = append(lines,
			"\tmultipath {",
			fmt.Sprintf("\t\twwid\t%s", wwid),
			fmt.Sprintf("\t\talias\t%s", table[wwid]),
			"\t}",
		)
	}

	return lines
}

// RewriteAliasConfig rewrites the multipaths block of a multipath
// configuration in place, preserving every line outside the block verbatim.
// The block body is fully regenerated from the table rather than patched,
// so rewriting twice with the same table produces identical output. If no
// multipaths block exists one is appended at end of file.
func RewriteAliasConfig(contents string, table map[string]string) string {
	lines := strings.Split(contents, "\n")

	// Drop the trailing empty element produced by a final newline so the
	// output keeps exactly one trailing newline regardless of input shape.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var out []string
	depth := 0
	inAliasBlock := false
	found := false

	for _, line := range lines {
		token := tokenizeLine(line)

		if token == tokenBlockStart {
			trimmed := strings.TrimSpace(line)
			keyword := strings.TrimSpace(strings.TrimSuffix(trimmed, "{"))
			if depth == 0 && keyword == aliasBlockKeyword && !found {
				// Keep the opening line, emit the regenerated body and
				// swallow the old body until the matching close brace.
				found = true
				inAliasBlock = true
				depth++
				out = append(out, line)
				out = append(out, aliasBlockBody(table)...)
				continue
			}

			depth++
			if !inAliasBlock {
				out = append(out, line)
			}

			continue
		}

		if token == tokenBlockEnd {
			depth--
			if inAliasBlock {
				if depth == 0 {
					inAliasBlock = false
					out = append(out, line)
				}

				continue
			}

			out = append(out, line)
			continue
		}

		if inAliasBlock {
			continue
		}

		// An empty one-line block has balanced braces and scans as
		// verbatim, yet it is still the block to regenerate.
		if depth == 0 && !found && isInlineAliasBlock(strings.TrimSpace(line)) {
			found = true
			out = append(out, aliasBlockKeyword+" {")
			out = append(out, aliasBlockBody(table)...)
			out = append(out, "}")
			continue
		}

		out = append(out, line)
	}

	if !found {
		out = append(out, aliasBlockKeyword+" {")
		out = append(out, aliasBlockBody(table)...)
		out = append(out, "}")
	}

	return strings.Join(out, "\n") + "\n"
}

// UpdateAliasConfig rewrites the alias block of the named configuration file
// on the host from the given table. A missing file is treated as empty so
// the block is created from scratch.
func UpdateAliasConfig(r Runner, path string, table map[string]string) error {
	contents, err := r.ReadFile(path)
	if err != nil {
		logger.Debug("Multipath configuration not readable, starting empty", logger.Ctx{"path": path, "err": err})
		contents = ""
	}

	rewritten := RewriteAliasConfig(contents, table)
	if rewritten == contents {
		return nil
	}

	err = r.WriteFile(path, rewritten)
	if err != nil {
		return fmt.Errorf("Failed to update %q: %w", path, err)
	}

	return nil
}

// ReloadMultipath asks the multipath daemon to pick up the rewritten
// configuration.
func ReloadMultipath(r Runner) error {
	_, err := r.Run("systemctl", "reload", "multipathd.service")
	if err != nil {
		// Fall back to the init script on hosts without systemd.
		_, fallbackErr := r.Run("service", "multipathd", "reload")
		if fallbackErr != nil {
			return fmt.Errorf("Failed to reload multipathd: %w", err)
		}
	}

	return nil
}
