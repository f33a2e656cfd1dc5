package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtectedDevicesMounts(t *testing.T) {
	r := newFakeRunner()
	r.outputs["findmnt --noheadings --list --types ext2,ext3,ext4,xfs --output SOURCE"] = `/dev/sda2
/dev/mapper/data01
/dev/sdb1
`

	members := map[string][]string{
		"data01":   {"sdk", "sdl"},
		"testvol2": {"sdg", "sdh", "sdi", "sdj"},
	}

	protected, err := ProtectedDevices(r, members)
	require.NoError(t, err)

	// Partition numbers are stripped and the member disks of a mounted
	// multipath alias are protected along with it.
	assert.Equal(t, map[string]bool{
		"sda":    true,
		"sdb":    true,
		"data01": true,
		"sdk":    true,
		"sdl":    true,
	}, protected)
}

func TestProtectedDevicesPhysicalVolumes(t *testing.T) {
	r := newFakeRunner()
	r.outputs["pvs --noheadings --options pv_name"] = `  /dev/sdc1
  /dev/mapper/data01
`

	members := map[string][]string{"data01": {"sdk", "sdl"}}

	protected, err := ProtectedDevices(r, members)
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{
		"sdc":    true,
		"data01": true,
		"sdk":    true,
		"sdl":    true,
	}, protected)
}

func TestProtectedDevicesNoProbes(t *testing.T) {
	r := newFakeRunner()

	protected, err := ProtectedDevices(r, nil)
	require.NoError(t, err)
	assert.Empty(t, protected)
}

func TestMountTarget(t *testing.T) {
	r := newFakeRunner()
	r.outputs["findmnt --noheadings --list --output TARGET --source /dev/mapper/data01"] = "/u05\n"

	assert.Equal(t, "/u05", MountTarget(r, "/dev/mapper/data01"))
	assert.Equal(t, "", MountTarget(r, "/dev/mapper/testvol2"))
}
