package dsm

import (
	"fmt"
	"strings"
	"time"
)

// DefaultFolderRoot is the root of the view volume namespace on the array.
const DefaultFolderRoot = "Linux"

// viewVolumeFolder is the namespace component holding presented clones.
const viewVolumeFolder = "View Volumes"

// CloneAPI is the subset of Session used by the clone engine.
type CloneAPI interface {
	API
	GetVolume(volumeID string) (*Volume, error)
	CreateSnapshot(volumeID string, description string, expireMinutes int) (*Snapshot, error)
	CreateViewVolume(snapshotID string, name string, folderID string) (*Volume, error)
	MapToServer(volumeID string, serverID string) (*Mapping, error)
}

// CloneRequest describes a snapshot/clone/map sequence to run on the array.
type CloneRequest struct {
	// VolumeID is the source volume to snapshot.
	VolumeID string

	// SourceShortName is the short host name of the server the source volume
	// is mapped to. It determines the destination folder and the clone name.
	SourceShortName string

	// Mountpoint is the path the source volume is mounted at on the source host.
	Mountpoint string

	// Environment names the destination environment, e.g. tst or dev.
	Environment string

	// DestinationServerID is the server the view volume is mapped to.
	DestinationServerID string

	// Description is attached to the snapshot.
	Description string

	// ExpireMinutes is the snapshot expiration; zero means never.
	ExpireMinutes int
}

// CloneResult holds the array objects created by a clone sequence.
type CloneResult struct {
	Snapshot *Snapshot
	Folder   *VolumeFolder
	Volume   *Volume
	Mapping  *Mapping
}

// CloneEngine drives the array-side snapshot, clone and map sequence.
type CloneEngine struct {
	api        CloneAPI
	resolver   *Resolver
	folderRoot string

	// now is swapped out by tests.
	now func() time.Time
}

// NewCloneEngine returns a clone engine operating through the given API.
// An empty folderRoot selects the default view volume namespace root.
func NewCloneEngine(api CloneAPI, folderRoot string) *CloneEngine {
	if folderRoot == "" {
		folderRoot = DefaultFolderRoot
	}

	return &CloneEngine{
		api:        api,
		resolver:   NewResolver(api),
		folderRoot: folderRoot,
		now:        time.Now,
	}
}

// MountLeaf reduces a mountpoint to its final path component, progressively
// stripping "/", "-" and "_" separated prefixes from the right.
func MountLeaf(mountpoint string) string {
	leaf := strings.TrimRight(mountpoint, "/")
	for _, sep := range []string{"/", "-", "_"} {
		if strings.Contains(leaf, sep) {
			parts := strings.Split(leaf, sep)
			leaf = parts[len(parts)-1]
		}
	}

	return leaf
}

// viewVolumeName generates the name for a view volume. The timestamp makes
// the name unique across repeated refreshes of the same source/mount pair.
func (e *CloneEngine) viewVolumeName(req CloneRequest) string {
	return fmt.Sprintf("vv_%s_%s_%s_%s", req.SourceShortName, MountLeaf(req.Mountpoint), req.Environment, e.now().Format("2006-01-02T15:04:05"))
}

// folderPath returns the destination namespace folder path for the source host.
func (e *CloneEngine) folderPath(req CloneRequest) string {
	return fmt.Sprintf("%s/%s/%s/", e.folderRoot, viewVolumeFolder, req.SourceShortName)
}

// Clone runs the snapshot, folder, view volume and map steps in strict order.
// No step is retried; the first failure aborts the sequence and is surfaced
// with the identity of the step that failed. Objects created by earlier steps
// are left in place for inspection.
func (e *CloneEngine) Clone(req CloneRequest) (*CloneResult, error) {
	result := &CloneResult{}

	snapshot, err := e.api.CreateSnapshot(req.VolumeID, req.Description, req.ExpireMinutes)
	if err != nil {
		return nil, fmt.Errorf("Snapshot step failed: %w", err)
	}

	result.Snapshot = snapshot

	folder, err := e.resolver.FindOrCreateFolder(e.folderPath(req))
	if err != nil {
		return nil, fmt.Errorf("Folder step failed: %w", err)
	}

	result.Folder = folder

	volume, err := e.api.CreateViewVolume(snapshot.InstanceID, e.viewVolumeName(req), folder.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("View volume step failed: %w", err)
	}

	result.Volume = volume

	mapping, err := e.api.MapToServer(volume.InstanceID, req.DestinationServerID)
	if err != nil {
		return nil, fmt.Errorf("Mapping step failed: %w", err)
	}

	result.Mapping = mapping

	return result, nil
}
