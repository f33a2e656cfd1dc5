package dsm

import (
	"fmt"
	"strings"
)

// ObjectRef is an embedded reference to another Storage Center object.
type ObjectRef struct {
	InstanceID   string `json:"instanceId"`
	InstanceName string `json:"instanceName"`
}

// Server represents a server object attached to the Storage Center.
type Server struct {
	InstanceID string `json:"instanceId"`
	Name       string `json:"name"`
}

func (s *Server) validate() error {
	if s.InstanceID == "" || s.Name == "" {
		return fmt.Errorf("Malformed server object: missing instanceId or name")
	}

	return nil
}

// Volume represents a volume managed by the Storage Center.
type Volume struct {
	InstanceID string    `json:"instanceId"`
	Name       string    `json:"name"`
	DeviceID   string    `json:"deviceId"`
	Folder     ObjectRef `json:"volumeFolder"`
}

func (v *Volume) validate() error {
	if v.InstanceID == "" || v.Name == "" {
		return fmt.Errorf("Malformed volume object: missing instanceId or name")
	}

	return nil
}

// WWID returns the multipath WWID the volume is surfaced under on Linux hosts.
// Compellent devices expose an NAA identifier derived from the device ID.
func (v *Volume) WWID() string {
	if v.DeviceID == "" {
		return ""
	}

	return "3" + strings.ToLower(v.DeviceID)
}

// Mapping represents a mapping profile joining a server and a volume.
type Mapping struct {
	InstanceID string    `json:"instanceId"`
	Server     ObjectRef `json:"server"`
	Volume     ObjectRef `json:"volume"`
}

func (m *Mapping) validate() error {
	if m.InstanceID == "" || m.Server.InstanceID == "" || m.Volume.InstanceID == "" {
		return fmt.Errorf("Malformed mapping object: missing instanceId, server or volume")
	}

	return nil
}

// VolumeFolder represents a node in the hierarchical volume namespace.
type VolumeFolder struct {
	InstanceID string    `json:"instanceId"`
	Name       string    `json:"name"`
	Parent     ObjectRef `json:"parent"`
}

func (f *VolumeFolder) validate() error {
	if f.InstanceID == "" || f.Name == "" {
		return fmt.Errorf("Malformed volume folder object: missing instanceId or name")
	}

	return nil
}

// Snapshot represents a point in time replay of a volume.
type Snapshot struct {
	InstanceID string    `json:"instanceId"`
	Volume     ObjectRef `json:"createVolume"`
	ExpireTime string    `json:"expireTime"`
}

func (s *Snapshot) validate() error {
	if s.InstanceID == "" {
		return fmt.Errorf("Malformed snapshot object: missing instanceId")
	}

	return nil
}
