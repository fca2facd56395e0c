package config

import "path/filepath"

type Directories struct {
	home string
}

func (d Directories) Home() string {
	return d.home
}

// Cache holds extracted daemon binaries, keyed by daemon-version-platform.
func (d Directories) Cache() string {
	return filepath.Join(d.home, "cache")
}

// Work is the default root under which fixture workdirs are created.
func (d Directories) Work() string {
	return filepath.Join(d.home, "data", "work")
}
