package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scstools/compellent/dsm"
	"github.com/scstools/compellent/host"
	"github.com/scstools/compellent/shared/logger"
	"github.com/scstools/compellent/shared/revert"
)

// ErrValidation marks a refresh request rejected before any network call.
var ErrValidation = errors.New("Validation failed")

// DefaultFilesystem is the filesystem type assumed for refreshed volumes.
const DefaultFilesystem = "xfs"

// snapshotDescription is attached to the temporary snapshot backing a clone.
const snapshotDescription = "temp view vol snap"

// RunnerFactory opens a command runner for the named host. The returned
// closer releases the underlying connection and is called exactly once.
type RunnerFactory func(fqdn string) (host.Runner, func(), error)

// Params describes a single refresh request.
type Params struct {
	// SourceHost is the host whose mapped volume is cloned.
	SourceHost string

	// DestinationHost receives the clone. Must differ from SourceHost and
	// must not be a production host.
	DestinationHost string

	// VolumePattern selects the source volume among the source host's
	// mappings. Must match exactly one. When empty the volume is
	// discovered from the device mounted at SourceMount on the source host.
	VolumePattern string

	// Environment names the destination environment, e.g. tst or dev.
	Environment string

	// SourceMount is where the volume is mounted on the source host. It
	// feeds the generated view volume name; empty means same as Mountpoint.
	SourceMount string

	// Mountpoint is where the clone is mounted on the destination host.
	Mountpoint string

	// Filesystem is the filesystem type used when mounting; empty selects
	// the default.
	Filesystem string

	// Expiration is the human time expression for the snapshot lifetime;
	// empty selects the default.
	Expiration string

	// AssumeYes skips the confirmation gate before destructive host steps.
	AssumeYes bool
}

// Result reports what a completed refresh did.
type Result struct {
	Clone *dsm.CloneResult

	// OldDevice is the device previously mounted at the mountpoint on the
	// destination, empty when nothing was mounted.
	OldDevice string

	// NewAlias is the multipath alias assigned to the refreshed volume.
	NewAlias string

	// NewDevice is the mapper path the refreshed volume was mounted from.
	NewDevice string
}

// Workflow sequences a refresh: resolve entities, clone on the array, then
// reconcile devices on the destination host. There is no rollback; a failed
// step leaves earlier artifacts in place for inspection.
type Workflow struct {
	// API is the array client the clone runs through.
	API dsm.CloneAPI

	// Names resolves host names; Domains are its candidate domains.
	Names   NameResolver
	Domains []string

	// RunnerFor opens a command runner on the destination host.
	RunnerFor RunnerFactory

	// Confirm gates destructive host steps. A nil Confirm together with
	// Params.AssumeYes unset refuses to run the destructive steps.
	Confirm func(question string) (bool, error)

	// Production reports whether a host name denotes a production server.
	// Nil selects the default matcher.
	Production func(name string) bool

	// FolderRoot overrides the view volume namespace root on the array.
	FolderRoot string

	// MultipathConfig overrides the multipath configuration path on the
	// destination host.
	MultipathConfig string
}

// matchesProduction is the default production matcher.
func matchesProduction(name string) bool {
	return strings.Contains(strings.ToLower(name), "prd")
}

// Validate checks a refresh request without touching the network.
func (w *Workflow) Validate(params Params) (int, error) {
	if params.SourceHost == "" || params.DestinationHost == "" || params.Mountpoint == "" {
		return 0, fmt.Errorf("%w: source, destination and mountpoint are all required", ErrValidation)
	}

	if params.VolumePattern == "" && params.SourceMount == "" {
		return 0, fmt.Errorf("%w: either a volume pattern or the source mountpoint is required", ErrValidation)
	}

	if strings.EqualFold(params.SourceHost, params.DestinationHost) {
		return 0, fmt.Errorf("%w: source cannot be the same as destination", ErrValidation)
	}

	production := w.Production
	if production == nil {
		production = matchesProduction
	}

	if production(params.DestinationHost) {
		return 0, fmt.Errorf("%w: refusing to refresh to production server %q", ErrValidation, params.DestinationHost)
	}

	expiration := params.Expiration
	if expiration == "" {
		expiration = dsm.DefaultExpiration
	}

	expireMinutes, err := dsm.ParseExpiration(expiration)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	return expireMinutes, nil
}

// Run executes the refresh. Cancellation is honored at step boundaries only;
// a step already started runs to completion or its own timeout.
func (w *Workflow) Run(ctx context.Context, params Params) (*Result, error) {
	expireMinutes, err := w.Validate(params)
	if err != nil {
		return nil, err
	}

	err = ctx.Err()
	if err != nil {
		return nil, err
	}

	// Resolve both hosts and the source volume mapping.
	srcShort, srcFQDN, err := w.Names.Resolve(params.SourceHost, w.Domains)
	if err != nil {
		return nil, fmt.Errorf("Resolve step failed: %w", err)
	}

	destShort, destFQDN, err := w.Names.Resolve(params.DestinationHost, w.Domains)
	if err != nil {
		return nil, fmt.Errorf("Resolve step failed: %w", err)
	}

	resolver := dsm.NewResolver(w.API)

	srcServer, err := w.resolveServer(resolver, srcShort, params.SourceHost)
	if err != nil {
		return nil, fmt.Errorf("Resolve step failed: %w", err)
	}

	destServer, err := w.resolveServer(resolver, destShort, params.DestinationHost)
	if err != nil {
		return nil, fmt.Errorf("Resolve step failed: %w", err)
	}

	sourceMount := params.SourceMount
	if sourceMount == "" {
		sourceMount = params.Mountpoint
	}

	mapping, err := w.resolveSourceMapping(resolver, srcServer, srcFQDN, sourceMount, params.VolumePattern)
	if err != nil {
		return nil, fmt.Errorf("Resolve step failed: %w", err)
	}

	logger.Info("Resolved refresh entities", logger.Ctx{"source": srcServer.Name, "destination": destServer.Name, "volume": mapping.Volume.InstanceName})

	err = ctx.Err()
	if err != nil {
		return nil, err
	}

	// Clone on the array.
	engine := dsm.NewCloneEngine(w.API, w.FolderRoot)
	clone, err := engine.Clone(dsm.CloneRequest{
		VolumeID:            mapping.Volume.InstanceID,
		SourceShortName:     srcShort,
		Mountpoint:          sourceMount,
		Environment:         params.Environment,
		DestinationServerID: destServer.InstanceID,
		Description:         snapshotDescription,
		ExpireMinutes:       expireMinutes,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Created view volume", logger.Ctx{"volume": clone.Volume.Name, "wwid": clone.Volume.WWID()})

	err = ctx.Err()
	if err != nil {
		return nil, err
	}

	// Reconcile devices on the destination host.
	result := &Result{Clone: clone}

	runner, closer, err := w.RunnerFor(destFQDN)
	if err != nil {
		return nil, fmt.Errorf("Reconcile step failed: %w", err)
	}

	defer closer()

	err = w.reconcile(ctx, runner, params, clone, result)
	if err != nil {
		return nil, fmt.Errorf("Reconcile step failed: %w", err)
	}

	return result, nil
}

// resolveSourceMapping locates the mapping of the volume being cloned. An
// explicit volume pattern is matched against the source server's mappings;
// without one the volume is identified by the serial of the device mounted
// at the source mountpoint on the source host.
func (w *Workflow) resolveSourceMapping(resolver *dsm.Resolver, srcServer *dsm.Server, srcFQDN string, sourceMount string, volumePattern string) (*dsm.Mapping, error) {
	if volumePattern != "" {
		return resolver.ResolveMapping(srcServer.InstanceID, volumePattern)
	}

	runner, closer, err := w.RunnerFor(srcFQDN)
	if err != nil {
		return nil, err
	}

	defer closer()

	device := host.MountSource(runner, sourceMount)
	if device == "" {
		return nil, fmt.Errorf("Nothing mounted at %q on %q", sourceMount, srcFQDN)
	}

	serial, err := host.DeviceSerial(runner, device)
	if err != nil {
		return nil, err
	}

	mappings, err := resolver.FindMappings(srcServer.InstanceID, "*")
	if err != nil {
		return nil, err
	}

	for i := range mappings {
		volume, err := w.API.GetVolume(mappings[i].Volume.InstanceID)
		if err != nil {
			return nil, err
		}

		if strings.EqualFold(serial, volume.DeviceID) || strings.EqualFold(serial, volume.WWID()) {
			logger.Info("Identified source volume by device serial", logger.Ctx{"volume": volume.Name, "device": device, "serial": serial})
			return &mappings[i], nil
		}
	}

	return nil, fmt.Errorf("%w: no volume mapped to %q has serial %q", dsm.ErrNotFound, srcServer.Name, serial)
}

// resolveServer matches a host to exactly one server, trying the short name
// first and falling back to the name the caller supplied.
func (w *Workflow) resolveServer(resolver *dsm.Resolver, short string, original string) (*dsm.Server, error) {
	server, err := resolver.ResolveServer(short)
	if err != nil && errors.Is(err, dsm.ErrNotFound) && short != original {
		return resolver.ResolveServer(strings.ToLower(original))
	}

	return server, err
}

// reconcile replaces whatever is mounted at the mountpoint on the destination
// host with the freshly mapped view volume.
func (w *Workflow) reconcile(ctx context.Context, r host.Runner, params Params, clone *dsm.CloneResult, result *Result) error {
	oldDevice := host.MountSource(r, params.Mountpoint)
	result.OldDevice = oldDevice

	alias := dsm.MountLeaf(params.Mountpoint)
	result.NewAlias = alias
	result.NewDevice = "/dev/mapper/" + alias

	question := fmt.Sprintf("Replace %q at %q on %q with volume %q? (yes/no) [default=no]: ", oldDevice, params.Mountpoint, params.DestinationHost, clone.Volume.Name)
	if oldDevice == "" {
		question = fmt.Sprintf("Mount volume %q at %q on %q? (yes/no) [default=no]: ", clone.Volume.Name, params.Mountpoint, params.DestinationHost)
	}

	if !params.AssumeYes {
		if w.Confirm == nil {
			return fmt.Errorf("Refusing destructive host changes without confirmation")
		}

		confirmed, err := w.Confirm(question)
		if err != nil {
			return err
		}

		if !confirmed {
			return fmt.Errorf("Refresh aborted by operator")
		}
	}

	err := ctx.Err()
	if err != nil {
		return err
	}

	// Until the old device is actually retired an aborted reconcile puts
	// its mount back.
	rev := revert.New()
	defer rev.Fail()

	err = host.Unmount(r, params.Mountpoint)
	if err != nil {
		return err
	}

	if oldDevice != "" {
		rev.Add(func() { _ = host.Mount(r, oldDevice, params.Mountpoint) })
	}

	// Retire the device that backed the old mount, unless something else
	// still protects it.
	members, err := host.AliasMembers(r)
	if err != nil {
		return err
	}

	protected, err := host.ProtectedDevices(r, members)
	if err != nil {
		return err
	}

	oldAlias := oldDeviceAlias(oldDevice)
	if oldDevice != "" && oldAlias == "" {
		logger.Warn("Previous mount source is not a multipath device, leaving it in place", logger.Ctx{"device": oldDevice, "mountpoint": params.Mountpoint})
	}

	if oldAlias != "" {
		plan := host.ComputeDeletionPlan(nil, []string{oldAlias}, members, protected)
		if len(plan.Blocked) > 0 {
			return fmt.Errorf("Previous device still in use: %s", strings.Join(plan.Blocked, " "))
		}

		logger.Info("Retiring previous device", logger.Ctx{"alias": oldAlias, "plan": plan.String()})

		// The old device is gone after this; nothing left to revert to.
		rev.Success()

		err = host.ApplyDeletionPlan(r, plan)
		if err != nil {
			return err
		}
	}

	// Make the new volume visible and give it a stable alias.
	err = host.RescanSCSIHosts(r)
	if err != nil {
		return err
	}

	table, err := host.WWIDAliasTable(r)
	if err != nil {
		return err
	}

	// The old alias was flushed above; drop its stale table entry so the
	// rewritten configuration does not resurrect it.
	for wwid, name := range table {
		if name == oldAlias {
			delete(table, wwid)
		}
	}

	updated, skipped := host.ReconcileAliases(r, table, []host.AliasChange{{WWID: clone.Volume.WWID(), Alias: alias}})
	if len(skipped) > 0 {
		return skipped[0]
	}

	configPath := w.MultipathConfig
	if configPath == "" {
		configPath = host.DefaultMultipathConfig
	}

	err = host.UpdateAliasConfig(r, configPath, updated)
	if err != nil {
		return err
	}

	err = host.ReloadMultipath(r)
	if err != nil {
		return err
	}

	// Mount the refreshed volume where the old one was and persist it.
	filesystem := params.Filesystem
	if filesystem == "" {
		filesystem = DefaultFilesystem
	}

	err = host.Mount(r, result.NewDevice, params.Mountpoint)
	if err != nil {
		return err
	}

	err = host.EnsureFstabEntry(r, result.NewDevice, params.Mountpoint, filesystem)
	if err != nil {
		return err
	}

	logger.Info("Refresh complete", logger.Ctx{"device": result.NewDevice, "mountpoint": params.Mountpoint})

	rev.Success()

	return nil
}

// oldDeviceAlias extracts the multipath alias from a mapper device path,
// returning an empty string for plain block devices.
func oldDeviceAlias(device string) string {
	alias, found := strings.CutPrefix(device, "/dev/mapper/")
	if !found {
		return ""
	}

	return alias
}
