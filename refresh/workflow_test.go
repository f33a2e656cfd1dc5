package refresh

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scstools/compellent/dsm"
	"github.com/scstools/compellent/host"
	"github.com/scstools/compellent/shared/logger"
)

// fakeNames resolves every host to itself under a fixed domain.
type fakeNames struct{}

func (fakeNames) Resolve(hostname string, domains []string) (string, string, error) {
	hostname = strings.ToLower(hostname)
	return hostname, hostname + ".example.edu", nil
}

// fakeArray is a canned array client covering the clone sequence.
type fakeArray struct {
	servers  []dsm.Server
	volumes  map[string]dsm.Volume
	mappings map[string][]dsm.Mapping
	folders  map[string][]dsm.VolumeFolder

	nextFolderID int
	snapshots    []string
	viewVolumes  []string
	mapped       []string
}

func newFakeArray() *fakeArray {
	return &fakeArray{
		servers: []dsm.Server{
			{InstanceID: "64702.101", Name: "psdbprd16a"},
			{InstanceID: "64702.102", Name: "psdbtst16a"},
		},
		volumes: map[string]dsm.Volume{
			"64702.301": {InstanceID: "64702.301", Name: "psdbprd16a-u05", DeviceID: "6000D31000D5F00000000000000000B1"},
		},
		mappings: map[string][]dsm.Mapping{
			"64702.101": {
				{
					InstanceID: "64702.201",
					Server:     dsm.ObjectRef{InstanceID: "64702.101", InstanceName: "psdbprd16a"},
					Volume:     dsm.ObjectRef{InstanceID: "64702.301", InstanceName: "psdbprd16a-u05"},
				},
			},
		},
		folders: map[string][]dsm.VolumeFolder{},
	}
}

func (f *fakeArray) ListServers() ([]dsm.Server, error) {
	return f.servers, nil
}

func (f *fakeArray) ListVolumes() ([]dsm.Volume, error) {
	return nil, nil
}

func (f *fakeArray) GetVolume(volumeID string) (*dsm.Volume, error) {
	volume, known := f.volumes[volumeID]
	if !known {
		return nil, fmt.Errorf("%w: no volume %q", dsm.ErrNotFound, volumeID)
	}

	return &volume, nil
}

func (f *fakeArray) ListServerMappings(serverID string) ([]dsm.Mapping, error) {
	return f.mappings[serverID], nil
}

func (f *fakeArray) ListVolumeFolders(parentID string) ([]dsm.VolumeFolder, error) {
	return f.folders[parentID], nil
}

func (f *fakeArray) CreateVolumeFolder(name string, parentID string) (*dsm.VolumeFolder, error) {
	f.nextFolderID++
	folder := dsm.VolumeFolder{
		InstanceID: fmt.Sprintf("64702.4%02d", f.nextFolderID),
		Name:       name,
		Parent:     dsm.ObjectRef{InstanceID: parentID},
	}

	f.folders[parentID] = append(f.folders[parentID], folder)

	return &folder, nil
}

func (f *fakeArray) CreateSnapshot(volumeID string, description string, expireMinutes int) (*dsm.Snapshot, error) {
	f.snapshots = append(f.snapshots, volumeID)
	return &dsm.Snapshot{InstanceID: "64702.501", Volume: dsm.ObjectRef{InstanceID: volumeID}}, nil
}

func (f *fakeArray) CreateViewVolume(snapshotID string, name string, folderID string) (*dsm.Volume, error) {
	f.viewVolumes = append(f.viewVolumes, name)
	return &dsm.Volume{
		InstanceID: "64702.302",
		Name:       name,
		DeviceID:   "6000D31000D5F00000000000000000C4",
		Folder:     dsm.ObjectRef{InstanceID: folderID},
	}, nil
}

func (f *fakeArray) MapToServer(volumeID string, serverID string) (*dsm.Mapping, error) {
	f.mapped = append(f.mapped, volumeID+"->"+serverID)
	return &dsm.Mapping{
		InstanceID: "64702.202",
		Server:     dsm.ObjectRef{InstanceID: serverID},
		Volume:     dsm.ObjectRef{InstanceID: volumeID},
	}, nil
}

// fakeRunner mirrors the canned runner used by the host package tests.
type fakeRunner struct {
	outputs  map[string]string
	files    map[string]string
	commands []string
	writes   map[string]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs: map[string]string{},
		files:   map[string]string{},
		writes:  map[string]string{},
	}
}

func (f *fakeRunner) Run(name string, args ...string) (string, error) {
	cmd := strings.Join(append([]string{name}, args...), " ")
	f.commands = append(f.commands, cmd)

	output, configured := f.outputs[cmd]
	if !configured {
		return "", host.NewRunError(cmd, 1, "")
	}

	return output, nil
}

func (f *fakeRunner) ReadFile(path string) (string, error) {
	contents, configured := f.files[path]
	if !configured {
		return "", host.NewRunError("cat "+path, 1, "No such file or directory")
	}

	return contents, nil
}

func (f *fakeRunner) WriteFile(path string, contents string) error {
	f.files[path] = contents
	f.writes[path] = contents

	return nil
}

func TestValidateSameHost(t *testing.T) {
	// A nil array client proves the request is rejected before any
	// network call.
	w := &Workflow{}

	_, err := w.Run(context.Background(), Params{
		SourceHost:      "psdbprd16a",
		DestinationHost: "PSDBPRD16A",
		VolumePattern:   "psdbprd16a-u05",
		Mountpoint:      "/u05",
	})

	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "same as destination")
}

func TestValidateProductionDestination(t *testing.T) {
	w := &Workflow{}

	_, err := w.Run(context.Background(), Params{
		SourceHost:      "psdbtst16a",
		DestinationHost: "psdbprd16a",
		VolumePattern:   "psdbtst16a-u05",
		Mountpoint:      "/u05",
	})

	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "production")
}

func TestValidateCustomProductionMatcher(t *testing.T) {
	w := &Workflow{
		API:        newFakeArray(),
		Names:      fakeNames{},
		Production: func(name string) bool { return strings.HasPrefix(name, "live-") },
	}

	_, err := w.Run(context.Background(), Params{
		SourceHost:      "live-db01",
		DestinationHost: "psdbprd16a",
		VolumePattern:   "vol",
		Mountpoint:      "/u05",
	})

	// The default matcher would have refused psdbprd16a; the custom one
	// lets it through and fails on resolution instead.
	require.NotErrorIs(t, err, ErrValidation)
}

func TestValidateBadExpiration(t *testing.T) {
	w := &Workflow{}

	_, err := w.Run(context.Background(), Params{
		SourceHost:      "psdbprd16a",
		DestinationHost: "psdbtst16a",
		VolumePattern:   "psdbprd16a-u05",
		Mountpoint:      "/u05",
		Expiration:      "-5d",
	})

	require.ErrorIs(t, err, ErrValidation)
}

func TestValidateMissingFields(t *testing.T) {
	w := &Workflow{}

	_, err := w.Run(context.Background(), Params{SourceHost: "psdbprd16a"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestRunRefusesWithoutConfirmation(t *testing.T) {
	array := newFakeArray()
	r := destinationRunner()

	w := &Workflow{
		API:       array,
		Names:     fakeNames{},
		RunnerFor: func(fqdn string) (host.Runner, func(), error) { return r, func() {}, nil },
	}

	_, err := w.Run(context.Background(), refreshParams(false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confirmation")

	// The clone already happened but no host command ran.
	assert.NotEmpty(t, array.viewVolumes)
	assert.NotContains(t, r.commands, "umount /u05")
}

func TestRunAbortedByOperator(t *testing.T) {
	array := newFakeArray()
	r := destinationRunner()

	w := &Workflow{
		API:       array,
		Names:     fakeNames{},
		RunnerFor: func(fqdn string) (host.Runner, func(), error) { return r, func() {}, nil },
		Confirm:   func(question string) (bool, error) { return false, nil },
	}

	_, err := w.Run(context.Background(), refreshParams(false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted")
	assert.NotContains(t, r.commands, "umount /u05")
}

func TestRunRefresh(t *testing.T) {
	array := newFakeArray()
	r := destinationRunner()

	var connected []string
	closed := 0

	w := &Workflow{
		API:   array,
		Names: fakeNames{},
		RunnerFor: func(fqdn string) (host.Runner, func(), error) {
			connected = append(connected, fqdn)
			return r, func() { closed++ }, nil
		},
	}

	result, err := w.Run(context.Background(), refreshParams(true))
	require.NoError(t, err)

	// Array side: snapshot of the source volume, view volume in the source
	// host's folder, mapped to the destination server.
	assert.Equal(t, []string{"64702.301"}, array.snapshots)
	require.Len(t, array.viewVolumes, 1)
	assert.True(t, strings.HasPrefix(array.viewVolumes[0], "vv_psdbprd16a_u05_tst_"), array.viewVolumes[0])
	assert.Equal(t, []string{"64702.302->64702.102"}, array.mapped)

	// Host side: connected to the destination FQDN, old device retired,
	// bus rescanned, new volume aliased and mounted.
	assert.Equal(t, []string{"psdbtst16a.example.edu"}, connected)
	assert.Equal(t, 1, closed)

	assert.Equal(t, "/dev/mapper/testvol2", result.OldDevice)
	assert.Equal(t, "u05", result.NewAlias)
	assert.Equal(t, "/dev/mapper/u05", result.NewDevice)

	assert.Contains(t, r.commands, "umount /u05")
	assert.Contains(t, r.commands, "multipath -f testvol2")
	assert.Equal(t, "1\n", r.writes["/sys/block/sdg/device/delete"])
	assert.Equal(t, "- - -\n", r.writes["/sys/class/scsi_host/host0/scan"])
	assert.Contains(t, r.commands, "systemctl reload multipathd.service")
	assert.Contains(t, r.commands, "mount /dev/mapper/u05 /u05")

	// The alias configuration binds the new WWID and drops the retired one.
	conf := r.files["/etc/multipath.conf"]
	assert.Contains(t, conf, "wwid\t36000d31000d5f00000000000000000c4")
	assert.Contains(t, conf, "alias\tu05")
	assert.NotContains(t, conf, "testvol2")

	// The mount is persisted.
	assert.Contains(t, r.files["/etc/fstab"], "/dev/mapper/u05\t/u05\txfs\tdefaults\t0 0")
	assert.NotContains(t, r.files["/etc/fstab"], "testvol2")
}

func TestRunRefreshDiscoversVolumeFromMount(t *testing.T) {
	array := newFakeArray()
	dest := destinationRunner()

	// The source host reports the mounted device and its array serial.
	src := newFakeRunner()
	src.outputs["findmnt --noheadings --first-only --output SOURCE --mountpoint /u05"] = "/dev/mapper/u05\n"
	src.outputs["lsblk --noheadings --nodeps --output SERIAL /dev/mapper/u05"] = "6000d31000d5f00000000000000000b1\n"

	w := &Workflow{
		API:   array,
		Names: fakeNames{},
		RunnerFor: func(fqdn string) (host.Runner, func(), error) {
			if fqdn == "psdbprd16a.example.edu" {
				return src, func() {}, nil
			}

			return dest, func() {}, nil
		},
	}

	params := refreshParams(true)
	params.VolumePattern = ""
	params.SourceMount = "/u05"

	result, err := w.Run(context.Background(), params)
	require.NoError(t, err)

	// The serial of the mounted device identified the mapped volume.
	assert.Equal(t, []string{"64702.301"}, array.snapshots)
	assert.Contains(t, src.commands, "lsblk --noheadings --nodeps --output SERIAL /dev/mapper/u05")
	assert.Equal(t, "/dev/mapper/u05", result.NewDevice)
	assert.Contains(t, dest.commands, "mount /dev/mapper/u05 /u05")
}

func TestRunRefreshPlainOldDevice(t *testing.T) {
	array := newFakeArray()
	r := destinationRunner()

	// The mountpoint is backed by a plain partition instead of a multipath
	// device.
	r.outputs["findmnt --noheadings --first-only --output SOURCE --mountpoint /u05"] = "/dev/sdq1\n"

	hook := logrustest.NewLocal(logger.Log)
	defer hook.Reset()

	w := &Workflow{
		API:       array,
		Names:     fakeNames{},
		RunnerFor: func(fqdn string) (host.Runner, func(), error) { return r, func() {}, nil },
	}

	result, err := w.Run(context.Background(), refreshParams(true))
	require.NoError(t, err)
	assert.Equal(t, "/dev/sdq1", result.OldDevice)

	// The old device is left in place with a warning instead of being
	// flushed.
	for _, cmd := range r.commands {
		assert.False(t, strings.HasPrefix(cmd, "multipath -f"), cmd)
	}

	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "not a multipath device") {
			warned = true
			assert.Equal(t, "/dev/sdq1", entry.Data["device"])
		}
	}

	assert.True(t, warned, "expected a warning about the un-retired device")

	// The refresh itself still completes.
	assert.Contains(t, r.commands, "mount /dev/mapper/u05 /u05")
	assert.Contains(t, r.files["/etc/multipath.conf"], "alias\tu05")
}

func TestRunBlockedOldDevice(t *testing.T) {
	array := newFakeArray()
	r := destinationRunner()

	// The old device is also an LVM physical volume, so retiring it must
	// be refused.
	r.outputs["pvs --noheadings --options pv_name"] = "  /dev/mapper/testvol2\n"

	w := &Workflow{
		API:       array,
		Names:     fakeNames{},
		RunnerFor: func(fqdn string) (host.Runner, func(), error) { return r, func() {}, nil },
	}

	_, err := w.Run(context.Background(), refreshParams(true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still in use")
	assert.NotContains(t, r.commands, "multipath -f testvol2")

	// The aborted reconcile put the old mount back.
	assert.Contains(t, r.commands, "mount /dev/mapper/testvol2 /u05")
}

func refreshParams(assumeYes bool) Params {
	return Params{
		SourceHost:      "psdbprd16a",
		DestinationHost: "psdbtst16a",
		VolumePattern:   "psdbprd16a-u05",
		Environment:     "tst",
		Mountpoint:      "/u05",
		AssumeYes:       assumeYes,
	}
}

// destinationRunner models a destination host with the old clone mounted at
// /u05 as multipath device testvol2.
func destinationRunner() *fakeRunner {
	r := newFakeRunner()

	r.outputs["findmnt --noheadings --first-only --output SOURCE --mountpoint /u05"] = "/dev/mapper/testvol2\n"
	r.outputs["umount /u05"] = ""

	r.outputs["multipath -l -v 1"] = "testvol2\n"
	r.outputs["multipath -ll testvol2"] = "testvol2 (36000d31000d5f00000000000000000a6) dm-3 COMPELNT,Compellent Vol\n" +
		"size=50G features='1 queue_if_no_path' hwhandler='0' wp=rw\n" +
		"`-+- policy='service-time 0' prio=1 status=active\n" +
		"  |- 34:0:0:1 sdg 8:96  active ready running\n" +
		"  `- 35:0:0:1 sdj 8:144 active ready running\n"
	r.outputs["multipath -ll"] = r.outputs["multipath -ll testvol2"]
	r.outputs["multipath -f testvol2"] = ""

	r.outputs["ls /sys/class/scsi_host"] = "host0\n"

	r.outputs["systemctl reload multipathd.service"] = ""
	r.outputs["mkdir -p /u05"] = ""
	r.outputs["mount /dev/mapper/u05 /u05"] = ""

	r.files["/etc/multipath.conf"] = "defaults {\n\tuser_friendly_names yes\n}\nmultipaths {\n\tmultipath {\n\t\twwid\t36000d31000d5f00000000000000000a6\n\t\talias\ttestvol2\n\t}\n}\n"
	r.files["/etc/fstab"] = "/dev/mapper/testvol2\t/u05\txfs\tdefaults\t0 0\n"

	return r
}
