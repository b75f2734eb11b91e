package config

// Merge merges two configs, with non-zero values in override taking
// precedence.
func Merge(base, override *Config) *Config {
	result := *base
	if override == nil {
		return &result
	}

	if override.Server.BaseURL != "" {
		result.Server.BaseURL = override.Server.BaseURL
	}
	if override.Server.StreamURL != "" {
		result.Server.StreamURL = override.Server.StreamURL
	}
	if override.Server.Timeout != 0 {
		result.Server.Timeout = override.Server.Timeout
	}
	if override.Server.MaxRetries != 0 {
		result.Server.MaxRetries = override.Server.MaxRetries
	}

	if override.Viewer.PollInterval != 0 {
		result.Viewer.PollInterval = override.Viewer.PollInterval
	}
	if override.Viewer.HeartbeatInterval != 0 {
		result.Viewer.HeartbeatInterval = override.Viewer.HeartbeatInterval
	}
	if override.Viewer.DisablePolling {
		result.Viewer.DisablePolling = true
	}

	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.NoColor {
		result.Logging.NoColor = true
	}

	if override.Preferences.Path != "" {
		result.Preferences.Path = override.Preferences.Path
	}
	if override.Preferences.ArtifactProfile != "" {
		result.Preferences.ArtifactProfile = override.Preferences.ArtifactProfile
	}
	return &result
}
