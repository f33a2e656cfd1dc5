package dsm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountLeaf(t *testing.T) {
	cases := []struct {
		mountpoint string
		leaf       string
	}{
		{"/u05", "u05"},
		{"/mnt/testvol1", "testvol1"},
		{"/oracle/CSDEV90-data01", "data01"},
		{"/oracle/CSDEV90_data_01", "01"},
		{"/u05/", "u05"},
		{"u05", "u05"},
	}

	for _, c := range cases {
		assert.Equal(t, c.leaf, MountLeaf(c.mountpoint), c.mountpoint)
	}
}

func TestViewVolumeName(t *testing.T) {
	engine := NewCloneEngine(newTestAPI(), "")
	engine.now = func() time.Time {
		return time.Date(2026, 8, 26, 14, 30, 5, 0, time.UTC)
	}

	req := CloneRequest{
		SourceShortName: "psdbprd16a",
		Mountpoint:      "/u05",
		Environment:     "tst",
	}

	assert.Equal(t, "vv_psdbprd16a_u05_tst_2026-08-26T14:30:05", engine.viewVolumeName(req))
}

func TestClone(t *testing.T) {
	api := newTestAPI()
	engine := NewCloneEngine(api, "")

	result, err := engine.Clone(CloneRequest{
		VolumeID:            "64555.10",
		SourceShortName:     "psdbprd16a",
		Mountpoint:          "/u05",
		Environment:         "tst",
		DestinationServerID: "64555.2",
		Description:         "refresh of /u05",
		ExpireMinutes:       10080,
	})
	require.NoError(t, err)

	assert.Equal(t, "64555.1000.1", result.Snapshot.InstanceID)
	assert.Equal(t, "psdbprd16a", result.Folder.Name)
	assert.Equal(t, result.Folder.InstanceID, result.Volume.Folder.InstanceID)
	assert.Equal(t, "64555.2", result.Mapping.Server.InstanceID)
	assert.Equal(t, result.Volume.InstanceID, result.Mapping.Volume.InstanceID)

	// The clone landed in the per source host view volume namespace.
	assert.Equal(t, []string{"Linux", "View Volumes", "psdbprd16a"}, api.createdFolders)
}
