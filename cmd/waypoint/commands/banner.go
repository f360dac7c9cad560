package commands

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/teranos/waypoint/logger"
	"github.com/teranos/waypoint/version"
)

// printStartupBanner prints the startup summary for serve
func printStartupBanner(verbosity int, dbPath string, port, workers int, geocoding bool) {
	info := version.Get()

	geocodingState := "disabled (geocoding.host is empty)"
	if geocoding {
		geocodingState = "enabled"
	}

	pterm.DefaultBox.WithTitle("waypoint").Println(fmt.Sprintf(
		"Version:   %s (commit %s)\nVerbosity: %s\nDatabase:  %s\nAPI:       http://localhost:%d\nWorkers:   %d\nGeocoding: %s",
		info.Version, info.Short(),
		logger.LevelName(verbosity),
		dbPath,
		port,
		workers,
		geocodingState,
	))
	pterm.Println()
	pterm.Info.Println("Press Ctrl+C to stop")
}
