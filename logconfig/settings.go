package logconfig

import (
	"fmt"

	myLogger "github.com/sirupsen/logrus"
)

// This output format is used in the test (has terminal).
func ConfigDebugLogger() {
	myLogger.SetReportCaller(true)
	myLogger.SetLevel(myLogger.DebugLevel)
	myLogger.SetFormatter(&myLogger.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

func ConfigInfoLogger() {
	myLogger.SetReportCaller(false)
	myLogger.SetLevel(myLogger.InfoLevel)
	myLogger.SetFormatter(&myLogger.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

// This output format is used in production.
func ConfigProductionLogger() {
	myLogger.SetReportCaller(false)
	myLogger.SetLevel(myLogger.InfoLevel)
	myLogger.SetFormatter(&myLogger.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
}

// Config applies a level name (debug, info, warn, error) and a format (text, json).
func Config(level, format string) error {
	lvl, err := myLogger.ParseLevel(level)
	if err != nil {
		return err
	}

	switch format {
	case "", "text":
		ConfigInfoLogger()
		myLogger.SetReportCaller(lvl >= myLogger.DebugLevel)
	case "json":
		ConfigProductionLogger()
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	myLogger.SetLevel(lvl)
	return nil
}
