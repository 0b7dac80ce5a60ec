// Package logger provides the structured logging interface used across pageharvest.
//
// It wraps zerolog behind a small Logger interface so components can attach
// fields (run_id, item_id, component) without depending on zerolog directly,
// and so tests can swap in a capturing TestLogger or a no-op logger.
//
// Basic Usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	logger.WithField("run_id", runID).Info("Harvest starting")
//	logger.WithError(err).WithField("item_id", id).Error("Item failed")
//
// Console output is colourised. With a log file, events also go to the file
// in the same layout without colour; logging.json switches the file stream
// to raw JSON lines.
package logger
