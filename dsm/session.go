package dsm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/scstools/compellent/shared/logger"
)

// ConnectionConfig holds the parameters needed to open a Storage Manager session.
type ConnectionConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	APIVersion string

	// StorageCenter is the serial number of the Storage Center the session
	// operates on. Instance IDs without a serial prefix are qualified with it.
	StorageCenter string

	// Timeout bounds every individual request, including login and logout.
	Timeout time.Duration

	// VerifyTLS controls verification of the Storage Manager's certificate.
	VerifyTLS bool
}

// Session is an authenticated connection to a Dell Storage Manager server.
// It must be closed with Close() which logs out at most once.
type Session struct {
	config  ConnectionConfig
	baseURL string
	http    *http.Client

	logoutOnce sync.Once
}

// Connect opens a new Storage Manager session and logs in.
// The returned session holds authentication state; the caller owns it
// exclusively and must call Close() when done.
func Connect(config ConnectionConfig) (*Session, error) {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("Failed to create cookie jar: %w", err)
	}

	s := &Session{
		config:  config,
		baseURL: fmt.Sprintf("https://%s:%d/api/rest", config.Host, config.Port),
		http: &http.Client{
			Jar: jar,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !config.VerifyTLS,
				},
			},
		},
	}

	err = s.request(http.MethodPost, "/ApiConnection/Login", nil, nil)
	if err != nil {
		if StatusErrorCheck(err, http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %s@%s", ErrAuth, config.User, config.Host)
		}

		return nil, fmt.Errorf("Failed to login to %q: %w", config.Host, err)
	}

	return s, nil
}

// Close logs out of the Storage Manager. The logout is attempted exactly once
// per successful Connect and any failure is swallowed since the session is
// being torn down regardless.
func (s *Session) Close() {
	s.logoutOnce.Do(func() {
		err := s.request(http.MethodPost, "/ApiConnection/Logout", nil, nil)
		if err != nil {
			logger.Warn("Failed to logout from Storage Manager", logger.Ctx{"host": s.config.Host, "err": err})
		}

		s.http.CloseIdleConnections()
	})
}

// StorageCenter returns the serial number of the Storage Center the session operates on.
func (s *Session) StorageCenter() string {
	return s.config.StorageCenter
}

// instanceID qualifies an instance ID with the Storage Center serial when needed.
func (s *Session) instanceID(id string) string {
	if strings.Contains(id, ".") {
		return id
	}

	return s.config.StorageCenter + "." + id
}

// createBodyReader creates a reader for the given request body contents.
func createBodyReader(contents map[string]any) (io.Reader, error) {
	body := &bytes.Buffer{}
	encoder := json.NewEncoder(body)
	err := encoder.Encode(contents)
	if err != nil {
		return nil, fmt.Errorf("Failed to write request body: %w", err)
	}

	return body, nil
}

// request issues a single HTTP request against the Storage Manager.
// A missing response within the configured timeout is reported as ErrTimeout,
// distinct from HTTP-level failures which are reported as StatusError.
func (s *Session) request(method string, path string, body io.Reader, response any) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("Failed to create request: %w", err)
	}

	req.Header.Add("Content-Type", "application/json; charset=utf-8")
	req.Header.Add("Accept", "application/json")
	req.Header.Add("x-dell-api-version", s.config.APIVersion)
	req.SetBasicAuth(s.config.User, s.config.Password)

	resp, err := s.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
		}

		return fmt.Errorf("Failed to send request: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return StatusErrorf(resp.StatusCode, "%s %s: %s", method, path, strings.TrimSpace(string(msg)))
	}

	if response != nil {
		decoder := json.NewDecoder(resp.Body)
		err = decoder.Decode(response)
		if err != nil {
			return fmt.Errorf("Failed to read response body: %s: %w", path, err)
		}
	}

	return nil
}

// isTimeout reports whether err represents an expired request deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// get issues a GET request and decodes the JSON response.
func (s *Session) get(path string, response any) error {
	return s.request(http.MethodGet, path, nil, response)
}

// post issues a POST request with an optional JSON body and decodes the JSON response.
func (s *Session) post(path string, contents map[string]any, response any) error {
	var body io.Reader
	if contents != nil {
		var err error
		body, err = createBodyReader(contents)
		if err != nil {
			return err
		}
	}

	return s.request(http.MethodPost, path, body, response)
}

// delete issues a DELETE request.
func (s *Session) delete(path string) error {
	return s.request(http.MethodDelete, path, nil, nil)
}

// ListServers returns all servers attached to the Storage Center.
func (s *Session) ListServers() ([]Server, error) {
	var servers []Server
	err := s.get(fmt.Sprintf("/StorageCenter/StorageCenter/%s/ServerList", s.config.StorageCenter), &servers)
	if err != nil {
		return nil, fmt.Errorf("Failed to list servers: %w", err)
	}

	for i := range servers {
		err = servers[i].validate()
		if err != nil {
			return nil, err
		}
	}

	return servers, nil
}

// ListVolumes returns all volumes managed by the Storage Center.
func (s *Session) ListVolumes() ([]Volume, error) {
	var volumes []Volume
	err := s.get(fmt.Sprintf("/StorageCenter/ScVolumeFolder/%s/VolumeList", s.config.StorageCenter), &volumes)
	if err != nil {
		return nil, fmt.Errorf("Failed to list volumes: %w", err)
	}

	for i := range volumes {
		err = volumes[i].validate()
		if err != nil {
			return nil, err
		}
	}

	return volumes, nil
}

// GetVolume returns the volume behind volumeID.
func (s *Session) GetVolume(volumeID string) (*Volume, error) {
	var volume Volume
	err := s.get(fmt.Sprintf("/StorageCenter/ScVolume/%s", volumeID), &volume)
	if err != nil {
		return nil, fmt.Errorf("Failed to get volume %q: %w", volumeID, err)
	}

	err = volume.validate()
	if err != nil {
		return nil, err
	}

	return &volume, nil
}

// ListServerMappings returns all mappings associated with the given server.
func (s *Session) ListServerMappings(serverID string) ([]Mapping, error) {
	var mappings []Mapping
	err := s.get(fmt.Sprintf("/StorageCenter/ScServer/%s/MappingList", serverID), &mappings)
	if err != nil {
		return nil, fmt.Errorf("Failed to list mappings for server %q: %w", serverID, err)
	}

	for i := range mappings {
		err = mappings[i].validate()
		if err != nil {
			return nil, err
		}
	}

	return mappings, nil
}

// ListVolumeMappingProfiles returns all mapping profiles associated with the given volume.
func (s *Session) ListVolumeMappingProfiles(volumeID string) ([]Mapping, error) {
	var mappings []Mapping
	err := s.get(fmt.Sprintf("/StorageCenter/ScVolume/%s/MappingProfileList", volumeID), &mappings)
	if err != nil {
		return nil, fmt.Errorf("Failed to list mapping profiles for volume %q: %w", volumeID, err)
	}

	for i := range mappings {
		err = mappings[i].validate()
		if err != nil {
			return nil, err
		}
	}

	return mappings, nil
}

// ListVolumeFolders lists the child volume folders of the given parent folder.
// An empty parent lists the folders at the root of the Storage Center.
func (s *Session) ListVolumeFolders(parentID string) ([]VolumeFolder, error) {
	if parentID == "" {
		parentID = "0"
	}

	var folders []VolumeFolder
	err := s.get(fmt.Sprintf("/StorageCenter/ScVolumeFolder/%s/VolumeFolderList", s.instanceID(parentID)), &folders)
	if err != nil {
		return nil, fmt.Errorf("Failed to list volume folders under %q: %w", parentID, err)
	}

	for i := range folders {
		err = folders[i].validate()
		if err != nil {
			return nil, err
		}
	}

	return folders, nil
}

// CreateVolumeFolder creates a new volume folder under the given parent.
func (s *Session) CreateVolumeFolder(name string, parentID string) (*VolumeFolder, error) {
	contents := map[string]any{
		"StorageCenter": s.config.StorageCenter,
		"Name":          name,
	}

	if parentID != "" {
		contents["Parent"] = s.instanceID(parentID)
	}

	var folder VolumeFolder
	err := s.post("/StorageCenter/ScVolumeFolder", contents, &folder)
	if err != nil {
		return nil, fmt.Errorf("Failed to create volume folder %q: %w", name, err)
	}

	err = folder.validate()
	if err != nil {
		return nil, err
	}

	return &folder, nil
}

// CreateSnapshot creates a replay of the given volume expiring after expireMinutes.
// An expiration of zero means the replay never expires.
func (s *Session) CreateSnapshot(volumeID string, description string, expireMinutes int) (*Snapshot, error) {
	contents := map[string]any{
		"Description": description,
		"ExpireTime":  fmt.Sprintf("%d", expireMinutes),
	}

	var snapshot Snapshot
	err := s.post(fmt.Sprintf("/StorageCenter/ScVolume/%s/CreateReplay", volumeID), contents, &snapshot)
	if err != nil {
		return nil, fmt.Errorf("Failed to create snapshot of volume %q: %w", volumeID, err)
	}

	err = snapshot.validate()
	if err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// CreateViewVolume creates a new volume from the given snapshot, placed in the given folder.
func (s *Session) CreateViewVolume(snapshotID string, name string, folderID string) (*Volume, error) {
	contents := map[string]any{
		"Name":         name,
		"VolumeFolder": folderID,
	}

	var volume Volume
	err := s.post(fmt.Sprintf("/StorageCenter/ScReplay/%s/CreateView", snapshotID), contents, &volume)
	if err != nil {
		return nil, fmt.Errorf("Failed to create view volume %q from snapshot %q: %w", name, snapshotID, err)
	}

	err = volume.validate()
	if err != nil {
		return nil, err
	}

	return &volume, nil
}

// MapToServer maps the given volume to the given server. If a mapping between
// the pair already exists the existing mapping is returned instead.
func (s *Session) MapToServer(volumeID string, serverID string) (*Mapping, error) {
	mappings, err := s.ListVolumeMappingProfiles(volumeID)
	if err != nil {
		return nil, err
	}

	for _, mapping := range mappings {
		if mapping.Server.InstanceID == serverID {
			return &mapping, nil
		}
	}

	contents := map[string]any{
		"Server": serverID,
	}

	var mapping Mapping
	err = s.post(fmt.Sprintf("/StorageCenter/ScVolume/%s/MapToServer", volumeID), contents, &mapping)
	if err != nil {
		return nil, fmt.Errorf("Failed to map volume %q to server %q: %w", volumeID, serverID, err)
	}

	err = mapping.validate()
	if err != nil {
		return nil, err
	}

	return &mapping, nil
}

// UnmapVolume removes any mapping profiles joining the given volume and server.
func (s *Session) UnmapVolume(volumeID string, serverID string) error {
	mappings, err := s.ListVolumeMappingProfiles(volumeID)
	if err != nil {
		return err
	}

	for _, mapping := range mappings {
		if mapping.Server.InstanceID != serverID {
			continue
		}

		err = s.delete(fmt.Sprintf("/StorageCenter/ScMappingProfile/%s", mapping.InstanceID))
		if err != nil {
			return fmt.Errorf("Failed to delete mapping profile %q: %w", mapping.InstanceID, err)
		}
	}

	return nil
}

// RecycleVolume moves the given volume to the recycle bin.
// This is the only destructive array operation exposed by the session.
func (s *Session) RecycleVolume(volumeID string) error {
	err := s.post(fmt.Sprintf("/StorageCenter/ScVolume/%s/Recycle", volumeID), nil, nil)
	if err != nil {
		return fmt.Errorf("Failed to recycle volume %q: %w", volumeID, err)
	}

	return nil
}
