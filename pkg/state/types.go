package state

import "path/filepath"

// Paths is the directory layout under a database root:
//
//	<db>/store                 pebble data
//	<db>/state/maintenance     last housekeeping report
//	<db>/state/tmp
//	<db>/state/crash           crash dumps
type Paths struct {
	DB          string
	Store       string
	State       string
	Maintenance string
	Tmp         string
	Crash       string
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		DB:          dbPath,
		Store:       filepath.Join(dbPath, "store"),
		State:       statePath,
		Maintenance: filepath.Join(statePath, "maintenance"),
		Tmp:         filepath.Join(statePath, "tmp"),
		Crash:       filepath.Join(statePath, "crash"),
	}
}

// managed lists the directories the server creates and writes to.
func (p Paths) managed() []string {
	return []string{p.Store, p.Maintenance, p.Tmp, p.Crash}
}

func StorePath(dbPath string) string       { return PathsFor(dbPath).Store }
func MaintenancePath(dbPath string) string { return PathsFor(dbPath).Maintenance }
