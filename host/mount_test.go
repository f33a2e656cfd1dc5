package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountSource(t *testing.T) {
	r := newFakeRunner()
	r.outputs["findmnt --noheadings --first-only --output SOURCE --mountpoint /u05"] = "/dev/mapper/testvol2\n"

	assert.Equal(t, "/dev/mapper/testvol2", MountSource(r, "/u05"))
	assert.Equal(t, "", MountSource(r, "/u06"))
}

func TestDeviceSerial(t *testing.T) {
	r := newFakeRunner()
	r.outputs["lsblk --noheadings --nodeps --output SERIAL /dev/mapper/testvol2"] = "6000d31000d5f00000000000000000a6\n"

	serial, err := DeviceSerial(r, "/dev/mapper/testvol2")
	require.NoError(t, err)
	assert.Equal(t, "6000d31000d5f00000000000000000a6", serial)

	_, err = DeviceSerial(r, "/dev/mapper/missing")
	assert.Error(t, err)
}

func TestUnmountNotMounted(t *testing.T) {
	r := newFakeRunner()

	// Nothing mounted at /u05, so no umount is attempted.
	err := Unmount(r, "/u05")
	require.NoError(t, err)
	assert.NotContains(t, r.commands, "umount /u05")
}

func TestUnmount(t *testing.T) {
	r := newFakeRunner()
	r.outputs["findmnt --noheadings --first-only --output SOURCE --mountpoint /u05"] = "/dev/mapper/testvol2\n"
	r.outputs["umount /u05"] = ""

	err := Unmount(r, "/u05")
	require.NoError(t, err)
	assert.Contains(t, r.commands, "umount /u05")
}

func TestMount(t *testing.T) {
	r := newFakeRunner()
	r.outputs["mkdir -p /u05"] = ""
	r.outputs["mount /dev/mapper/u05 /u05"] = ""

	err := Mount(r, "/dev/mapper/u05", "/u05")
	require.NoError(t, err)
}

const fstab = `# /etc/fstab
UUID=abcd1234 / ext4 defaults 1 1
/dev/mapper/testvol2	/u05	xfs	defaults	0 0
/dev/mapper/data01	/u06	xfs	defaults	0 0
`

func TestRewriteFstabReplacesEntry(t *testing.T) {
	rewritten := RewriteFstab(fstab, "/dev/mapper/u05", "/u05", "xfs")

	assert.Contains(t, rewritten, "/dev/mapper/u05\t/u05\txfs\tdefaults\t0 0\n")
	assert.NotContains(t, rewritten, "/dev/mapper/testvol2")

	// Unrelated entries and comments survive verbatim.
	assert.Contains(t, rewritten, "# /etc/fstab\n")
	assert.Contains(t, rewritten, "UUID=abcd1234 / ext4 defaults 1 1\n")
	assert.Contains(t, rewritten, "/dev/mapper/data01\t/u06\txfs\tdefaults\t0 0\n")
}

func TestRewriteFstabAppendsEntry(t *testing.T) {
	rewritten := RewriteFstab(fstab, "/dev/mapper/u07", "/u07", "xfs")

	assert.Contains(t, rewritten, fstab)
	assert.Contains(t, rewritten, "/dev/mapper/u07\t/u07\txfs\tdefaults\t0 0\n")
}

func TestRewriteFstabIdempotent(t *testing.T) {
	once := RewriteFstab(fstab, "/dev/mapper/u05", "/u05", "xfs")
	twice := RewriteFstab(once, "/dev/mapper/u05", "/u05", "xfs")
	assert.Equal(t, once, twice)
}

func TestEnsureFstabEntryUnchanged(t *testing.T) {
	r := newFakeRunner()
	r.files["/etc/fstab"] = fstab

	err := EnsureFstabEntry(r, "/dev/mapper/testvol2", "/u05", "xfs")
	require.NoError(t, err)
	assert.Empty(t, r.writes)
}
