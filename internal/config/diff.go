package config

import "reflect"

// ConfigDiff describes what changed between two configs. Log level and
// farewell vocabulary are applied live; every other changed section is
// listed in Restart and takes effect on the next start.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	FarewellChanged bool
	Farewell        FarewellConfig

	// Restart names the changed sections that are not hot-applied, in
	// declaration order.
	Restart []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.FarewellChanged && len(d.Restart) == 0
}

// Diff compares old and new configs.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !reflect.DeepEqual(old.Farewell, new.Farewell) {
		d.FarewellChanged = true
		d.Farewell = new.Farewell
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"backend", old.Backend, new.Backend},
		{"modes", old.Modes, new.Modes},
		{"vad", old.VAD, new.VAD},
		{"recorder", old.Recorder, new.Recorder},
		{"audio", old.Audio, new.Audio},
		{"camera", old.Camera, new.Camera},
		{"speech", old.Speech, new.Speech},
		{"history", old.History, new.History},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.Restart = append(d.Restart, s.name)
		}
	}
	return d
}
