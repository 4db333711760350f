package telemetry

import (
	"fmt"

	"github.com/grafana/pyroscope-go"
	log "github.com/sirupsen/logrus"
)

// InitPyroscope starts continuous profiling. It returns a nil shutdown
// function when pyroscopeServerURL is empty.
func InitPyroscope(pyroscopeServerURL string) (func() error, error) {
	if pyroscopeServerURL == "" {
		return nil, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: serviceName,
		ServerAddress:   pyroscopeServerURL,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start pyroscope profiler: %s", err)
	}

	log.WithFields(log.Fields{
		"server":  pyroscopeServerURL,
		"service": serviceName,
	}).Info("pyroscope profiler started")

	return profiler.Stop, nil
}
