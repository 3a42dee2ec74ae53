//go:build !darwin

package source

import (
	"context"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

// Native returns the platform capture backend. It is unavailable here.
func Native(clock func() time.Time, reg *uia.MemoryRegistry) Source {
	return unsupportedSource{}
}

type unsupportedSource struct{}

func (unsupportedSource) Open(context.Context) (Stream, error) {
	return nil, ErrUnsupported
}
