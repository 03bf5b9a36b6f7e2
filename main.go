package main

import (
	"os"
	"os/signal"
	"path"

	"github.com/fleetwatch/core/app/service"
	"github.com/fleetwatch/core/log"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	logger := log.New("core").WithOutput(log.NewConsoleWriter(os.Stderr, log.Lwarn, true))

	configfile := findConfigfile()

	svc, err := service.New(configfile, os.Stderr)
	if err != nil {
		logger.Error().WithError(err).Log("Failed to create the service")
		os.Exit(1)
	}

	go func() {
		defer func() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				proc.Signal(os.Interrupt)
			}
		}()

		if err := svc.Start(); err != nil {
			logger.Error().WithError(err).Log("Failed to start the service")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the app
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	svc.Stop()
}

// findConfigfile returns the path to the config file. If no path is given in
// the environment variable FW_CONFIGFILE, different standard locations will
// be probed:
// - os.UserConfigDir() + /fleetwatch/fleetwatch.json
// - os.UserHomeDir() + /.config/fleetwatch/fleetwatch.json
// - ./config/fleetwatch.json
// If the config doesn't exist in any of these locations, it will be assumed
// at ./config/fleetwatch.json
func findConfigfile() string {
	configfile := os.Getenv("FW_CONFIGFILE")
	if len(configfile) != 0 {
		return configfile
	}

	locations := []string{}

	if dir, err := os.UserConfigDir(); err == nil {
		locations = append(locations, dir+"/fleetwatch/fleetwatch.json")
	}

	if dir, err := os.UserHomeDir(); err == nil {
		locations = append(locations, dir+"/.config/fleetwatch/fleetwatch.json")
	}

	locations = append(locations, "./config/fleetwatch.json")

	for _, path := range locations {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if info.IsDir() {
			continue
		}

		configfile = path
	}

	if len(configfile) == 0 {
		configfile = "./config/fleetwatch.json"
	}

	os.MkdirAll(path.Dir(configfile), 0740)

	return configfile
}
