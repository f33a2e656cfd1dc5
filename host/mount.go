package host

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/scstools/compellent/shared/logger"
)

// fstabPath is the filesystem table updated by EnsureFstabEntry.
const fstabPath = "/etc/fstab"

// MountSource returns the source device mounted at the given mountpoint, or
// an empty string when nothing is mounted there.
func MountSource(r Runner, mountpoint string) string {
	output, err := r.Run("findmnt", "--noheadings", "--first-only", "--output", "SOURCE", "--mountpoint", mountpoint)
	if err != nil {
		// findmnt exits non-zero when the mountpoint has no mount.
		return ""
	}

	return strings.TrimSpace(output)
}

// DeviceSerial returns the serial number reported for a block device, which
// for an array backed device matches the array's device ID.
func DeviceSerial(r Runner, device string) (string, error) {
	output, err := r.Run("lsblk", "--noheadings", "--nodeps", "--output", "SERIAL", device)
	if err != nil {
		return "", fmt.Errorf("Failed to read serial of %q: %w", device, err)
	}

	return strings.TrimSpace(output), nil
}

// Mount mounts the device at the given mountpoint, creating the mountpoint
// if needed.
func Mount(r Runner, device string, mountpoint string) error {
	_, err := r.Run("mkdir", "-p", mountpoint)
	if err != nil {
		return fmt.Errorf("Failed to create mountpoint %q: %w", mountpoint, err)
	}

	_, err = r.Run("mount", device, mountpoint)
	if err != nil {
		return fmt.Errorf("Failed to mount %q at %q: %w", device, mountpoint, err)
	}

	return nil
}

// Unmount unmounts the given mountpoint. Unmounting a mountpoint with
// nothing mounted is not an error.
func Unmount(r Runner, mountpoint string) error {
	if MountSource(r, mountpoint) == "" {
		logger.Debug("Nothing mounted, skipping unmount", logger.Ctx{"mountpoint": mountpoint})
		return nil
	}

	_, err := r.Run("umount", mountpoint)
	if err != nil {
		return fmt.Errorf("Failed to unmount %q: %w", mountpoint, err)
	}

	return nil
}

// fstabEntry renders the filesystem table line for a device mount.
func fstabEntry(device string, mountpoint string, fstype string) string {
	return fmt.Sprintf("%s\t%s\t%s\tdefaults\t0 0", device, mountpoint, fstype)
}

// RewriteFstab updates the filesystem table contents so the given mountpoint
// is backed by the given device. An existing entry for the mountpoint is
// replaced in place, otherwise a new entry is appended. Every other line is
// preserved verbatim.
func RewriteFstab(contents string, device string, mountpoint string, fstype string) string {
	lines := strings.Split(contents, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	entry := fstabEntry(device, mountpoint, fstype)

	var out []string
	replaced := false
	scanner := bufio.NewScanner(strings.NewReader(strings.Join(lines, "\n")))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			out = append(out, line)
			continue
		}

		fields := strings.Fields(trimmed)
		if len(fields) >= 2 && fields[1] == mountpoint {
			if !replaced {
				out = append(out, entry)
				replaced = true
			}

			continue
		}

		out = append(out, line)
	}

	if !replaced {
		out = append(out, entry)
	}

	return strings.Join(out, "\n") + "\n"
}

// EnsureFstabEntry persists the mount of a device at a mountpoint across
// reboots by updating the host's filesystem table.
func EnsureFstabEntry(r Runner, device string, mountpoint string, fstype string) error {
	contents, err := r.ReadFile(fstabPath)
	if err != nil {
		return fmt.Errorf("Failed to read %q: %w", fstabPath, err)
	}

	rewritten := RewriteFstab(contents, device, mountpoint, fstype)
	if rewritten == contents {
		return nil
	}

	err = r.WriteFile(fstabPath, rewritten)
	if err != nil {
		return fmt.Errorf("Failed to update %q: %w", fstabPath, err)
	}

	return nil
}
