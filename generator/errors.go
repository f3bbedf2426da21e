package generator

import "errors"

// ErrGeneration marks a failed text or image generation call.
// It ends the current cycle but never the process.
var ErrGeneration = errors.New("generation failed")
