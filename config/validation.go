package config

import (
	"time"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validate checks the config for invalid values.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	errors = append(errors, validateAPI(&c.API)...)
	errors = append(errors, validateSocket(&c.Socket)...)
	errors = append(errors, validateSnapshot(&c.Snapshot)...)
	errors = append(errors, validatePoll(&c.Poll)...)
	errors = append(errors, validateStateServer(&c.StateServer)...)

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validateAPI(a *APIConfig) []ValidationError {
	var errors []ValidationError

	if a.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "api.base_url",
			Message: "must not be empty",
		})
	}
	if a.Timeout < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "api.timeout",
			Message: "must be at least 1 second",
		})
	}

	return errors
}

func validateSocket(s *SocketConfig) []ValidationError {
	var errors []ValidationError

	if s.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "socket.url",
			Message: "must not be empty",
		})
	}
	if s.RetryDelay < 100*time.Millisecond {
		errors = append(errors, ValidationError{
			Field:   "socket.retry_delay",
			Message: "must be at least 100ms",
		})
	}
	if s.RetryPolicy != "fixed" && s.RetryPolicy != "backoff" {
		errors = append(errors, ValidationError{
			Field:   "socket.retry_policy",
			Message: "must be \"fixed\" or \"backoff\"",
		})
	}
	if s.PingInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "socket.ping_interval",
			Message: "must be at least 1 second",
		})
	}

	return errors
}

func validateSnapshot(s *SnapshotConfig) []ValidationError {
	var errors []ValidationError

	if s.Enabled && s.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "snapshot.url",
			Message: "must not be empty when snapshot feed is enabled",
		})
	}
	if s.Enabled && len(s.Paths) == 0 {
		errors = append(errors, ValidationError{
			Field:   "snapshot.paths",
			Message: "must name at least one path when snapshot feed is enabled",
		})
	}

	return errors
}

func validatePoll(p *PollConfig) []ValidationError {
	var errors []ValidationError

	if p.Interval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "poll.interval",
			Message: "must be at least 1 second",
		})
	}

	return errors
}

func validateStateServer(s *StateServerConfig) []ValidationError {
	var errors []ValidationError

	if s.Enabled && (s.Port < 1 || s.Port > 65535) {
		errors = append(errors, ValidationError{
			Field:   "state_server.port",
			Message: "must be a valid port number",
		})
	}

	return errors
}
