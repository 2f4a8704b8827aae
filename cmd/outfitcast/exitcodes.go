package main

const (
	ExitSuccess      = 0 // Success
	ExitError        = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError  = 2 // Configuration error (unreadable or invalid config, bad mapping files)
	ExitDataError    = 3 // Data error (malformed outfit, extents exceeded, unknown category)
	ExitWeatherError = 4 // Weather provider rejected the request or was unreachable
	ExitModelMissing = 5 // No checkpoint registered under the configured name
)
