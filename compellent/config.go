package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v2"

	"github.com/scstools/compellent/dsm"
	"github.com/scstools/compellent/host"
	"github.com/scstools/compellent/refresh"
	cli "github.com/scstools/compellent/shared/cmd"
	"github.com/scstools/compellent/shared/logger"
)

// Config holds one named profile of the configuration file.
type Config struct {
	// Storage Manager connection.
	DSMHost       string `yaml:"dsm_host"`
	DSMPort       int    `yaml:"dsm_port"`
	DSMUser       string `yaml:"dsm_user"`
	APIVersion    string `yaml:"api_version"`
	StorageCenter string `yaml:"sc_serial"`

	// Timeout in seconds for each Storage Manager request.
	Timeout int `yaml:"timeout"`

	// Domains tried when qualifying unqualified host names.
	Domains []string `yaml:"domains"`

	// SSH connection to managed hosts.
	SSHUser string `yaml:"ssh_user"`
	SSHPort int    `yaml:"ssh_port"`

	// FolderRoot overrides the view volume namespace root on the array.
	FolderRoot string `yaml:"folder_root"`

	// ProductionPattern overrides the substring marking production hosts.
	ProductionPattern string `yaml:"production_pattern"`
}

// defaultConfigPath returns the user's configuration file location.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/compellent/config.yml"
	}

	return filepath.Join(home, ".config", "compellent", "config.yml")
}

// loadConfig reads the selected profile from the configuration file.
func (c *cmdGlobal) loadConfig() (*Config, error) {
	path := c.flagConfig
	if path == "" {
		path = defaultConfigPath()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Failed to read configuration file %q: %w", path, err)
	}

	profiles := map[string]*Config{}
	err = yaml.Unmarshal(content, &profiles)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse configuration file %q: %w", path, err)
	}

	config, ok := profiles[c.flagProfile]
	if !ok || config == nil {
		return nil, fmt.Errorf("Configuration file %q has no profile %q", path, c.flagProfile)
	}

	if config.DSMHost == "" || config.DSMUser == "" || config.StorageCenter == "" {
		return nil, fmt.Errorf("Profile %q must set dsm_host, dsm_user and sc_serial", c.flagProfile)
	}

	if config.DSMPort == 0 {
		config.DSMPort = 3033
	}

	if config.APIVersion == "" {
		config.APIVersion = "3.1"
	}

	if config.Timeout == 0 {
		config.Timeout = 30
	}

	return config, nil
}

// dsmPassword fetches the Storage Manager password from the system keyring,
// prompting for it on a miss or when explicitly requested.
func (c *cmdGlobal) dsmPassword(config *Config) string {
	service := "dsm_" + config.DSMHost

	if !c.flagAskPassword {
		password, err := keyring.Get(service, config.DSMUser)
		if err == nil {
			return password
		}

		if !errors.Is(err, keyring.ErrNotFound) {
			logger.Debug("Failed to read password from keyring", logger.Ctx{"service": service, "err": err})
		}
	}

	password := cli.AskPasswordOnce(fmt.Sprintf("Enter Dell Storage Manager password for %s@%s: ", config.DSMUser, config.DSMHost))

	err := keyring.Set(service, config.DSMUser, password)
	if err != nil {
		logger.Warn("Failed to store password in keyring", logger.Ctx{"service": service, "err": err})
	}

	return password
}

// session opens an authenticated Storage Manager session for the profile.
func (c *cmdGlobal) session(config *Config) (*dsm.Session, error) {
	return dsm.Connect(dsm.ConnectionConfig{
		Host:          config.DSMHost,
		Port:          config.DSMPort,
		User:          config.DSMUser,
		Password:      c.dsmPassword(config),
		APIVersion:    config.APIVersion,
		StorageCenter: config.StorageCenter,
		Timeout:       time.Duration(config.Timeout) * time.Second,
		VerifyTLS:     !c.flagInsecure,
	})
}

// runnerFactory returns a factory opening SSH runners on managed hosts.
func (c *cmdGlobal) runnerFactory(config *Config) refresh.RunnerFactory {
	return func(fqdn string) (host.Runner, func(), error) {
		runner, err := host.ConnectSSH(host.SSHConfig{
			Host:         fqdn,
			Port:         config.SSHPort,
			User:         config.SSHUser,
			CheckHostKey: !c.flagInsecure,
		})
		if err != nil {
			return nil, nil, err
		}

		return runner, runner.Close, nil
	}
}

// hostRunner resolves a host name and opens an SSH runner on it.
func (c *cmdGlobal) hostRunner(config *Config, hostname string) (host.Runner, func(), error) {
	_, fqdn, err := refresh.DNSResolver{}.Resolve(hostname, config.Domains)
	if err != nil {
		return nil, nil, err
	}

	return c.runnerFactory(config)(fqdn)
}

// production returns the production host matcher for the profile, nil when
// the default matcher applies.
func (config *Config) production() func(string) bool {
	if config.ProductionPattern == "" {
		return nil
	}

	return func(name string) bool {
		return strings.Contains(strings.ToLower(name), strings.ToLower(config.ProductionPattern))
	}
}
