package main

import (
	"context"
	"errors"

	herrors "pageharvest/pkg/errors"
	"pageharvest/pkg/ui"
)

// configError marks a failure to load or validate configuration
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// reportFatal prints err in red with a remediation hint
func reportFatal(err error) {
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		ui.PrintError("Configuration error", cfgErr.err)
		ui.PrintHint("run `pageharvest config validate` to check your settings")
		return
	}
	if errors.Is(err, context.Canceled) {
		ui.PrintWarning("Interrupted")
		return
	}

	ui.PrintError(err.Error())
	if hint := hintFor(err); hint != "" {
		ui.PrintHint(hint)
	}
}

func hintFor(err error) string {
	switch herrors.TypeOf(err) {
	case herrors.ErrorTypeMissingSession:
		return "run `pageharvest login` to capture a session"
	case herrors.ErrorTypeInvalidSession:
		return "the saved session is unreadable; run `pageharvest login` again"
	case herrors.ErrorTypeMissingManifest:
		return "check manifest path (--manifest or manifest.path)"
	case herrors.ErrorTypeInvalidManifest:
		return "check manifest contents and manifest.id_field"
	case herrors.ErrorTypeRunInProgress:
		return "another harvest is writing to this artifact directory; wait for it to finish"
	case herrors.ErrorTypeBrowserLaunch:
		return "check browser.bin or browser.remote_url"
	default:
		return ""
	}
}
