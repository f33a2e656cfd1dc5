package host

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/scstools/compellent/shared/logger"
)

// multipathDeviceRegex matches the header line of a multipath device listing,
// e.g. "testvol2 (36000d31000d5f00000000000000000a6) dm-3 COMPELNT,Compellent Vol".
var multipathDeviceRegex = regexp.MustCompile(`^(?P<alias>\S+)\s+\((?P<wwid>\w+)\)\s+dm-\d+\s+`)

// multipathMemberRegex matches a path member line of a multipath device listing,
// e.g. "  |- 34:0:0:1 sdg 8:96  active ready running".
var multipathMemberRegex = regexp.MustCompile("^\\s+[|`]-+\\s+\\d+:\\d+:\\d+:\\d+\\s+(?P<disk>\\w+)\\s+\\d+:\\d+")

// WWIDAliasTable derives the current WWID to alias table from the live
// multipath state, one entry per recognized device line. A host without any
// multipath devices yields an empty table, not an error.
func WWIDAliasTable(r Runner) (map[string]string, error) {
	output, err := r.Run("multipath", "-ll")
	if err != nil {
		// No multipath configuration returned.
		logger.Debug("No multipath devices listed", logger.Ctx{"err": err})
		return map[string]string{}, nil
	}

	table := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		match := multipathDeviceRegex.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}

		table[match[2]] = match[1]
	}

	return table, nil
}

// MultipathAliases returns the names of the multipath devices present on the host.
func MultipathAliases(r Runner) ([]string, error) {
	output, err := r.Run("multipath", "-l", "-v", "1")
	if err != nil {
		// No multipath aliases returned.
		logger.Debug("No multipath aliases listed", logger.Ctx{"err": err})
		return nil, nil
	}

	var aliases []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		alias := strings.TrimSpace(scanner.Text())
		if alias != "" {
			aliases = append(aliases, alias)
		}
	}

	return aliases, nil
}

// AliasMembers maps every multipath alias on the host to its member disks.
func AliasMembers(r Runner) (map[string][]string, error) {
	aliases, err := MultipathAliases(r)
	if err != nil {
		return nil, err
	}

	members := map[string][]string{}
	for _, alias := range aliases {
		members[alias] = nil

		output, err := r.Run("multipath", "-ll", alias)
		if err != nil {
			// No multipath info returned for this alias.
			logger.Debug("No multipath info for alias", logger.Ctx{"alias": alias, "err": err})
			continue
		}

		scanner := bufio.NewScanner(strings.NewReader(output))
		for scanner.Scan() {
			match := multipathMemberRegex.FindStringSubmatch(scanner.Text())
			if match == nil {
				continue
			}

			members[alias] = append(members[alias], match[1])
		}
	}

	return members, nil
}
