package buildconfig

import "runtime"

// Set at link time:
//
//	-ldflags "-X github.com/anacreon-labs/factledger/internal/buildconfig.version=v0.3.0
//	          -X github.com/anacreon-labs/factledger/internal/buildconfig.commit=$(git rev-parse --short HEAD)
//	          -X github.com/anacreon-labs/factledger/internal/buildconfig.date=$(date -u +%FT%TZ)"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Name is reported by /version and ledgerctl.
const Name = "factledger"

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// String is a one-line banner, e.g. "factledger dev (unknown, go1.24.0)".
func String() string {
	return Name + " " + version + " (" + commit + ", " + runtime.Version() + ")"
}

// VersionInfo is the /version payload.
func VersionInfo() map[string]string {
	return map[string]string{
		"name":       Name,
		"version":    version,
		"commit":     commit,
		"built_at":   date,
		"go_version": runtime.Version(),
	}
}
