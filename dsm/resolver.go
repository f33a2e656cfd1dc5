package dsm

import (
	"fmt"
	"path"
	"strings"
)

// API is the subset of Session used for entity resolution.
type API interface {
	ListServers() ([]Server, error)
	ListVolumes() ([]Volume, error)
	ListServerMappings(serverID string) ([]Mapping, error)
	ListVolumeFolders(parentID string) ([]VolumeFolder, error)
	CreateVolumeFolder(name string, parentID string) (*VolumeFolder, error)
}

// Resolver locates servers, volumes and folders by name pattern and enforces
// uniqueness before any of them is acted upon.
type Resolver struct {
	api API
}

// NewResolver returns a resolver backed by the given API.
func NewResolver(api API) *Resolver {
	return &Resolver{api: api}
}

// matchName matches a name against a shell-glob pattern ('*', '?' and
// character classes). The match is case-sensitive and is not a regular
// expression match.
func matchName(pattern string, name string) (bool, error) {
	matched, err := path.Match(pattern, name)
	if err != nil {
		return false, fmt.Errorf("Invalid name pattern %q: %w", pattern, err)
	}

	return matched, nil
}

// FindServers returns all servers whose name matches the given pattern.
func (r *Resolver) FindServers(pattern string) ([]Server, error) {
	servers, err := r.api.ListServers()
	if err != nil {
		return nil, err
	}

	var matches []Server
	for _, server := range servers {
		matched, err := matchName(pattern, server.Name)
		if err != nil {
			return nil, err
		}

		if matched {
			matches = append(matches, server)
		}
	}

	return matches, nil
}

// ResolveServer returns the single server matching the given pattern.
// Zero matches fail with ErrNotFound and multiple matches with
// ErrAmbiguousMatch; the first match is never picked silently.
func (r *Resolver) ResolveServer(pattern string) (*Server, error) {
	matches, err := r.FindServers(pattern)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no server matches %q", ErrNotFound, pattern)
	}

	if len(matches) > 1 {
		return nil, fmt.Errorf("%w: %d servers match %q", ErrAmbiguousMatch, len(matches), pattern)
	}

	return &matches[0], nil
}

// FindVolumes returns all volumes whose name matches the given pattern.
func (r *Resolver) FindVolumes(pattern string) ([]Volume, error) {
	volumes, err := r.api.ListVolumes()
	if err != nil {
		return nil, err
	}

	var matches []Volume
	for _, volume := range volumes {
		matched, err := matchName(pattern, volume.Name)
		if err != nil {
			return nil, err
		}

		if matched {
			matches = append(matches, volume)
		}
	}

	return matches, nil
}

// ResolveVolume returns the single volume matching the given pattern.
func (r *Resolver) ResolveVolume(pattern string) (*Volume, error) {
	matches, err := r.FindVolumes(pattern)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no volume matches %q", ErrNotFound, pattern)
	}

	if len(matches) > 1 {
		return nil, fmt.Errorf("%w: %d volumes match %q", ErrAmbiguousMatch, len(matches), pattern)
	}

	return &matches[0], nil
}

// FindMappings returns all mappings on the given server whose volume name
// matches the given pattern.
func (r *Resolver) FindMappings(serverID string, volumePattern string) ([]Mapping, error) {
	mappings, err := r.api.ListServerMappings(serverID)
	if err != nil {
		return nil, err
	}

	var matches []Mapping
	for _, mapping := range mappings {
		matched, err := matchName(volumePattern, mapping.Volume.InstanceName)
		if err != nil {
			return nil, err
		}

		if matched {
			matches = append(matches, mapping)
		}
	}

	return matches, nil
}

// ResolveMapping returns the single mapping on the given server whose volume
// name matches the given pattern.
func (r *Resolver) ResolveMapping(serverID string, volumePattern string) (*Mapping, error) {
	matches, err := r.FindMappings(serverID, volumePattern)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no mapped volume matches %q", ErrNotFound, volumePattern)
	}

	if len(matches) > 1 {
		return nil, fmt.Errorf("%w: %d mapped volumes match %q", ErrAmbiguousMatch, len(matches), volumePattern)
	}

	return &matches[0], nil
}

// FindOrCreateFolder walks the hierarchical folder path from the root,
// matching each segment exactly, and creates any missing segments.
// The lookup runs first so repeated calls with the same path are idempotent.
func (r *Resolver) FindOrCreateFolder(folderPath string) (*VolumeFolder, error) {
	segments := strings.FieldsFunc(folderPath, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return nil, fmt.Errorf("Empty volume folder path %q", folderPath)
	}

	var current *VolumeFolder
	parentID := ""
	for _, segment := range segments {
		folders, err := r.api.ListVolumeFolders(parentID)
		if err != nil {
			return nil, err
		}

		current = nil
		for i := range folders {
			if folders[i].Name == segment {
				current = &folders[i]
				break
			}
		}

		if current == nil {
			current, err = r.api.CreateVolumeFolder(segment, parentID)
			if err != nil {
				return nil, err
			}
		}

		parentID = current.InstanceID
	}

	return current, nil
}
