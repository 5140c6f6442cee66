package config_test

import (
	"testing"

	"github.com/soulcast-ai/soulcast/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Souls: []config.SoulConfig{
			{Name: "meimei", Persona: "kind", Voice: "v1"},
		},
	}
	d := config.Diff(cfg, cfg)
	if d.SoulsChanged {
		t.Error("expected SoulsChanged=false for identical configs")
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if len(d.SoulChanges) != 0 {
		t.Errorf("expected 0 soul changes, got %d", len(d.SoulChanges))
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_SoulPersonaChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Souls: []config.SoulConfig{
			{Name: "bob", Persona: "grumpy"},
		},
	}
	new := &config.Config{
		Souls: []config.SoulConfig{
			{Name: "bob", Persona: "cheerful"},
		},
	}

	d := config.Diff(old, new)
	if !d.SoulsChanged {
		t.Error("expected SoulsChanged=true")
	}
	if len(d.SoulChanges) != 1 {
		t.Fatalf("expected 1 soul change, got %d", len(d.SoulChanges))
	}
	if !d.SoulChanges[0].PersonaChanged {
		t.Error("expected PersonaChanged=true")
	}
	if d.SoulChanges[0].VoiceChanged {
		t.Error("expected VoiceChanged=false")
	}
}

func TestDiff_SoulVoiceChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Souls: []config.SoulConfig{
			{Name: "carol", Voice: "v1", Speed: 1.0},
		},
	}
	new := &config.Config{
		Souls: []config.SoulConfig{
			{Name: "carol", Voice: "v1", Speed: 1.2},
		},
	}

	d := config.Diff(old, new)
	if !d.SoulsChanged {
		t.Error("expected SoulsChanged=true")
	}
	found := false
	for _, sc := range d.SoulChanges {
		if sc.Name == "carol" && sc.VoiceChanged {
			found = true
		}
	}
	if !found {
		t.Error("expected carol's VoiceChanged=true")
	}
}

func TestDiff_SoulModelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Souls: []config.SoulConfig{
			{Name: "dan", Model: "gpt-4o-mini"},
		},
	}
	new := &config.Config{
		Souls: []config.SoulConfig{
			{Name: "dan", Model: "gpt-4o"},
		},
	}

	d := config.Diff(old, new)
	if !d.SoulsChanged {
		t.Error("expected SoulsChanged=true")
	}
	found := false
	for _, sc := range d.SoulChanges {
		if sc.Name == "dan" && sc.ModelChanged {
			found = true
		}
	}
	if !found {
		t.Error("expected dan's ModelChanged=true")
	}
}

func TestDiff_SoulAdded(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Souls: []config.SoulConfig{
			{Name: "eve"},
		},
	}
	new := &config.Config{
		Souls: []config.SoulConfig{
			{Name: "eve"},
			{Name: "frank"},
		},
	}

	d := config.Diff(old, new)
	if !d.SoulsChanged {
		t.Error("expected SoulsChanged=true")
	}
	found := false
	for _, sc := range d.SoulChanges {
		if sc.Name == "frank" && sc.Added {
			found = true
		}
	}
	if !found {
		t.Error("expected frank Added=true")
	}
}

func TestDiff_SoulRemoved(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Souls: []config.SoulConfig{
			{Name: "grace"},
			{Name: "hank"},
		},
	}
	new := &config.Config{
		Souls: []config.SoulConfig{
			{Name: "grace"},
		},
	}

	d := config.Diff(old, new)
	if !d.SoulsChanged {
		t.Error("expected SoulsChanged=true")
	}
	found := false
	for _, sc := range d.SoulChanges {
		if sc.Name == "hank" && sc.Removed {
			found = true
		}
	}
	if !found {
		t.Error("expected hank Removed=true")
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Souls: []config.SoulConfig{
			{Name: "a", Persona: "p1"},
			{Name: "b"},
		},
	}
	new := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogWarn},
		Souls: []config.SoulConfig{
			{Name: "a", Persona: "p2"},
			{Name: "c"},
		},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.SoulsChanged {
		t.Error("expected SoulsChanged=true")
	}
	// a: persona changed, b: removed, c: added
	changes := make(map[string]config.SoulDiff)
	for _, sc := range d.SoulChanges {
		changes[sc.Name] = sc
	}
	if !changes["a"].PersonaChanged {
		t.Error("expected a PersonaChanged=true")
	}
	if !changes["b"].Removed {
		t.Error("expected b Removed=true")
	}
	if !changes["c"].Added {
		t.Error("expected c Added=true")
	}
}
