package config

// ChangeSet describes what changed between two configs. Only fields that can
// be applied without a restart are tracked: log verbosity, the speech gate
// thresholds, and the server's partial pacing.
type ChangeSet struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GateChanged is true when any gate threshold differs. The gate is
	// re-read per frame, so new values take effect on the next utterance.
	GateChanged bool
	NewGate     GateConfig

	// PartialPacingChanged is true when partial_interval_ms or
	// partial_max_ms differ. Applied to sessions created after the reload.
	PartialPacingChanged bool
}

// Empty reports whether the change set carries no applicable changes.
func (c ChangeSet) Empty() bool {
	return !c.LogLevelChanged && !c.GateChanged && !c.PartialPacingChanged
}

// Diff compares old and new configs and returns the hot-applicable changes.
// Changes to fields that require a restart (bind address, backends, sinks)
// are deliberately ignored here.
func Diff(old, new *Config) ChangeSet {
	d := ChangeSet{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Gate != new.Gate {
		d.GateChanged = true
		d.NewGate = new.Gate
	}

	if old.Server.PartialIntervalMs != new.Server.PartialIntervalMs ||
		old.Server.PartialMaxMs != new.Server.PartialMaxMs {
		d.PartialPacingChanged = true
	}

	return d
}
