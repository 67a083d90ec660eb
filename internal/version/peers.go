package version

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Peer is another service whose /version endpoint is aggregated.
type Peer struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type peersFile struct {
	Services []Peer `yaml:"services"`
}

// LoadPeers reads the peer list from a YAML file:
//
//	services:
//	  - name: ingest
//	    url: http://ingest:3003
//
// An empty path yields no peers.
func LoadPeers(path string) ([]Peer, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read version services file: %w", err)
	}

	return ParsePeers(data)
}

// ParsePeers decodes and validates a peer list.
func ParsePeers(data []byte) ([]Peer, error) {
	var file peersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse version services file: %w", err)
	}

	seen := make(map[string]bool, len(file.Services))
	for i, p := range file.Services {
		if p.Name == "" {
			return nil, fmt.Errorf("services[%d]: name is required", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("services[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true

		u, err := url.Parse(p.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("services[%d]: invalid url %q", i, p.URL)
		}
	}

	return file.Services, nil
}
