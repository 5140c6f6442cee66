package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	SoulsChanged    bool       // true if any soul persona or voice parameters changed
	SoulChanges     []SoulDiff // per-soul diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// SoulDiff describes what changed for a single soul between two configs.
type SoulDiff struct {
	Name           string
	PersonaChanged bool
	VoiceChanged   bool
	ModelChanged   bool
	Added          bool
	Removed        bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Build soul lookup maps keyed by name.
	oldSouls := make(map[string]*SoulConfig, len(old.Souls))
	for i := range old.Souls {
		oldSouls[old.Souls[i].Name] = &old.Souls[i]
	}
	newSouls := make(map[string]*SoulConfig, len(new.Souls))
	for i := range new.Souls {
		newSouls[new.Souls[i].Name] = &new.Souls[i]
	}

	// Detect modified and removed souls.
	for name, oldSoul := range oldSouls {
		newSoul, exists := newSouls[name]
		if !exists {
			d.SoulChanges = append(d.SoulChanges, SoulDiff{
				Name:    name,
				Removed: true,
			})
			d.SoulsChanged = true
			continue
		}
		sd := diffSoul(name, oldSoul, newSoul)
		if sd.PersonaChanged || sd.VoiceChanged || sd.ModelChanged {
			d.SoulChanges = append(d.SoulChanges, sd)
			d.SoulsChanged = true
		}
	}

	// Detect added souls.
	for name := range newSouls {
		if _, exists := oldSouls[name]; !exists {
			d.SoulChanges = append(d.SoulChanges, SoulDiff{
				Name:  name,
				Added: true,
			})
			d.SoulsChanged = true
		}
	}

	return d
}

// diffSoul compares two soul configs with the same name.
func diffSoul(name string, old, new *SoulConfig) SoulDiff {
	sd := SoulDiff{Name: name}

	if old.Persona != new.Persona {
		sd.PersonaChanged = true
	}

	if old.Voice != new.Voice || old.Speed != new.Speed || old.Emotion != new.Emotion {
		sd.VoiceChanged = true
	}

	if old.Model != new.Model {
		sd.ModelChanged = true
	}

	return sd
}
