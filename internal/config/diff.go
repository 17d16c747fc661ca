package config

import "slices"

// Diff describes what changed between two configs. Only the log level can
// be applied at runtime; every other tracked change needs a restart.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the top-level sections whose change only takes
	// effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing tracked changed.
func (d Diff) Empty() bool {
	return !d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Compare returns what changed from old to new.
func Compare(old, new *Config) Diff {
	var d Diff
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	restart := func(section string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, section)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("model", !modelEqual(old.Model, new.Model))
	restart("conditioning", old.Conditioning != new.Conditioning)
	restart("voting", old.Voting.HistoryDepth != new.Voting.HistoryDepth ||
		old.Voting.CooldownCycles() != new.Voting.CooldownCycles())
	restart("classifier", !entryEqual(old.Classifier, new.Classifier))
	restart("fallbacks", !slices.EqualFunc(old.Fallbacks, new.Fallbacks, entryEqual))
	restart("streams", !slices.Equal(old.Streams, new.Streams))
	restart("journal", old.Journal != new.Journal)
	restart("hub", old.Hub.Enabled != new.Hub.Enabled ||
		old.Hub.SubscriberBuffer != new.Hub.SubscriberBuffer ||
		!slices.Equal(old.Hub.OriginPatterns, new.Hub.OriginPatterns))
	return d
}

func modelEqual(a, b ModelConfig) bool {
	return a.SampleRate == b.SampleRate &&
		a.BlockSize == b.BlockSize &&
		a.NegativeClass == b.NegativeClass &&
		slices.Equal(a.Labels, b.Labels)
}

// entryEqual ignores Options, whose values are not comparable.
func entryEqual(a, b ClassifierEntry) bool {
	return a.Name == b.Name &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		a.Timeout == b.Timeout &&
		a.Quantize == b.Quantize &&
		a.Breaker == b.Breaker
}
