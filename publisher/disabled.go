package publisher

import (
	"context"
	"fmt"
)

// Disabled stands in for a platform whose credentials are missing. Every
// publish fails with the configured reason so the cycle summary shows it.
type Disabled struct {
	Name   string
	Reason string
}

func (d Disabled) Platform() string { return d.Name }

func (d Disabled) Publish(context.Context, Content) Result {
	return Result{
		Platform: d.Name,
		OK:       false,
		Message:  fmt.Sprintf("%s disabled: %s", d.Name, d.Reason),
	}
}
