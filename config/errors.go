package config

import "errors"

var (
	// ErrConfig marks a settings file or required secret problem. Fatal at startup.
	ErrConfig = errors.New("config error")
	// ErrMissingSecret is returned by Secret when the key is absent after merge.
	ErrMissingSecret = errors.New("missing secret")
)
