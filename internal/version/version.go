// Package version reports build metadata for this service and its peers.
package version

import (
	"os"
)

const unknown = "unknown"

// Info is the build metadata served at /version.
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	GitBranch string `json:"gitBranch"`
	BuildTime string `json:"buildTime"`
}

// Local returns this service's metadata. buildVersion comes from the
// linker flag; SERVICE_VERSION, GIT_COMMIT, GIT_BRANCH and BUILD_TIME
// override it. Missing values are "unknown".
func Local(service, buildVersion string) Info {
	return Info{
		Service:   service,
		Version:   firstNonEmpty(os.Getenv("SERVICE_VERSION"), buildVersion),
		GitCommit: firstNonEmpty(os.Getenv("GIT_COMMIT")),
		GitBranch: firstNonEmpty(os.Getenv("GIT_BRANCH")),
		BuildTime: firstNonEmpty(os.Getenv("BUILD_TIME")),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return unknown
}
