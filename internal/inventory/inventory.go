// Package inventory holds the set of hosts monitored in fleet mode.
package inventory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Host describes one monitored machine and how to reach it.
type Host struct {
	HostID   string `yaml:"host_id"`
	Address  string `yaml:"address"` // host:port for SSH
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
	OS       string `yaml:"os,omitempty"`
}

// Inventory lists the hosts to poll each cycle.
type Inventory interface {
	List() []Host
}

// Static is an in-memory inventory, used for single-host mode and tests.
type Static struct {
	Hosts []Host
}

func (s *Static) List() []Host {
	return s.Hosts
}

type fileFormat struct {
	Hosts []Host `yaml:"hosts"`
}

// LoadFile reads a YAML inventory file.
//
//	hosts:
//	  - host_id: web-1
//	    address: 10.0.0.11:22
//	    user: ops
//	    key_file: /etc/hostsentry/id_ed25519
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}

	seen := make(map[string]bool)
	for i, h := range f.Hosts {
		if h.HostID == "" {
			return nil, fmt.Errorf("inventory host %d: host_id required", i)
		}
		if h.Address == "" {
			return nil, fmt.Errorf("inventory host %q: address required", h.HostID)
		}
		if seen[h.HostID] {
			return nil, fmt.Errorf("inventory host %q: duplicate host_id", h.HostID)
		}
		seen[h.HostID] = true
	}

	return &Static{Hosts: f.Hosts}, nil
}
