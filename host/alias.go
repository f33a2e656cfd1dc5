package host

import (
	"fmt"
	"regexp"

	"github.com/scstools/compellent/shared/logger"
)

// AliasChange is a requested WWID to alias binding.
type AliasChange struct {
	WWID  string
	Alias string
}

// aliasPairRegex matches the "wwid:alias" argument form.
var aliasPairRegex = regexp.MustCompile(`^(?P<wwid>\w+):(?P<alias>\w+)$`)

// ParseAliasChange parses a "wwid:alias" pair.
func ParseAliasChange(pair string) (*AliasChange, error) {
	match := aliasPairRegex.FindStringSubmatch(pair)
	if match == nil {
		return nil, fmt.Errorf("%q does not match the \"wwid:alias\" format", pair)
	}

	return &AliasChange{WWID: match[1], Alias: match[2]}, nil
}

// SkippedAlias records an alias change that was refused because the device
// behind the current alias is in use.
type SkippedAlias struct {
	WWID         string
	CurrentAlias string
	WantedAlias  string
}

func (s SkippedAlias) Error() string {
	return fmt.Sprintf("Device in use: refusing to change alias %q to %q", s.CurrentAlias, s.WantedAlias)
}

// SyncAliasConfig reconciles the requested alias changes against the live
// multipath state and rewrites the configuration from the resulting table.
// The rewrite and daemon reload always run, even when every change was
// refused, so the file ends up reflecting the current running configuration.
// Returns the number of changes applied and the changes that were skipped.
func SyncAliasConfig(r Runner, configPath string, changes []AliasChange) (int, []SkippedAlias, error) {
	table, err := WWIDAliasTable(r)
	if err != nil {
		return 0, nil, err
	}

	updated, skipped := ReconcileAliases(r, table, changes)

	err = UpdateAliasConfig(r, configPath, updated)
	if err != nil {
		return 0, skipped, err
	}

	err = ReloadMultipath(r)
	if err != nil {
		return 0, skipped, err
	}

	return len(changes) - len(skipped), skipped, nil
}

// ReconcileAliases applies the requested changes to a copy of the WWID to
// alias table. A change whose WWID is currently bound to an alias with a
// mounted device is skipped and reported rather than applied; an alias bound
// to a mounted device is never reassigned. The updated table is returned
// without being persisted.
func ReconcileAliases(r Runner, table map[string]string, changes []AliasChange) (map[string]string, []SkippedAlias) {
	updated := make(map[string]string, len(table))
	for wwid, alias := range table {
		updated[wwid] = alias
	}

	var skipped []SkippedAlias
	for _, change := range changes {
		current, known := updated[change.WWID]
		if known {
			target := MountTarget(r, "/dev/mapper/"+current)
			if target != "" {
				logger.Warn("Refusing to change alias of mounted device", logger.Ctx{"wwid": change.WWID, "alias": current, "wanted": change.Alias, "mountpoint": target})
				skipped = append(skipped, SkippedAlias{WWID: change.WWID, CurrentAlias: current, WantedAlias: change.Alias})
				continue
			}
		}

		updated[change.WWID] = change.Alias
	}

	return updated, skipped
}
