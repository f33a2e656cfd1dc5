package host

import (
	"bufio"
	"regexp"
	"sort"
	"strings"

	"github.com/scstools/compellent/shared/logger"
)

// protectedFilesystems are the filesystem types whose mounts protect their
// backing devices from deletion.
const protectedFilesystems = "ext2,ext3,ext4,xfs"

// blockDeviceRegex extracts the disk name from a block device path,
// stripping any partition number, e.g. "/dev/sda2" yields "sda".
var blockDeviceRegex = regexp.MustCompile(`^/dev/(?P<disk>[a-zA-Z]+)\d*$`)

// mapperDeviceRegex extracts the alias from a device mapper path.
var mapperDeviceRegex = regexp.MustCompile(`^/dev/mapper/(?P<alias>\w+)$`)

// ProtectedDevices computes the set of devices that must never be deleted or
// reassigned: block devices backing a currently mounted filesystem, LVM
// physical volumes, and the member disks of any multipath alias that is
// itself protected. The set is recomputed from live host state on every call
// and each probe yielding no output is treated as empty, not as an error.
func ProtectedDevices(r Runner, members map[string][]string) (map[string]bool, error) {
	protected := map[string]bool{}

	// Retrieve all mounted filesystems.
	mounts, err := r.Run("findmnt", "--noheadings", "--list", "--types", protectedFilesystems, "--output", "SOURCE")
	if err != nil {
		// No mounted filesystems returned.
		logger.Debug("No mounted filesystems listed", logger.Ctx{"err": err})
		mounts = ""
	}

	scanner := bufio.NewScanner(strings.NewReader(mounts))
	for scanner.Scan() {
		device := strings.TrimSpace(scanner.Text())

		match := mapperDeviceRegex.FindStringSubmatch(device)
		if match != nil {
			alias := match[1]
			protected[alias] = true

			// Multipath member disks of a mounted alias are protected too.
			for _, disk := range members[alias] {
				protected[disk] = true
			}

			continue
		}

		match = blockDeviceRegex.FindStringSubmatch(device)
		if match != nil {
			protected[match[1]] = true
		}
	}

	// Look at all LVM physical volumes.
	pvs, err := r.Run("pvs", "--noheadings", "--options", "pv_name")
	if err != nil {
		// No LVM physical volumes returned.
		logger.Debug("No LVM physical volumes listed", logger.Ctx{"err": err})
		pvs = ""
	}

	scanner = bufio.NewScanner(strings.NewReader(pvs))
	for scanner.Scan() {
		device := strings.TrimSpace(scanner.Text())

		match := mapperDeviceRegex.FindStringSubmatch(device)
		if match != nil {
			alias := match[1]
			protected[alias] = true
			for _, disk := range members[alias] {
				protected[disk] = true
			}

			continue
		}

		match = blockDeviceRegex.FindStringSubmatch(device)
		if match != nil {
			protected[match[1]] = true
		}
	}

	return protected, nil
}

// MountTarget returns the mountpoint the given source device is mounted at,
// or an empty string when it is not mounted.
func MountTarget(r Runner, source string) string {
	output, err := r.Run("findmnt", "--noheadings", "--list", "--output", "TARGET", "--source", source)
	if err != nil {
		// findmnt exits non-zero when nothing matches, which is the state
		// the callers are checking for.
		return ""
	}

	return strings.TrimSpace(output)
}

// sortedKeys returns the keys of a string set in sorted order.
func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
