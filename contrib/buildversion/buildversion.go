package buildversion

import "runtime/debug"

// GetVersion returns the version of the named module as recorded in the
// build info of the running binary, or "unknown" if it cannot be found.
func GetVersion(modulePath string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	if info.Main.Path == modulePath {
		if info.Main.Version != "" {
			return info.Main.Version
		}
		return "unknown"
	}

	for _, dep := range info.Deps {
		if dep.Path != modulePath {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			return dep.Replace.Version
		}
		return dep.Version
	}

	return "unknown"
}
