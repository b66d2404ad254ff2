// Package state holds process-scoped, shared-across-requests gateway
// state: the currently active provider selection, swapped atomically so
// concurrent requests see a consistent snapshot without a lock on the hot
// path.
package state

import (
	"sync/atomic"

	"github.com/Davincible/claude-proxy/internal/router"
)

// ActiveSelection is the last non-passthrough routing decision the
// gateway made, surfaced to the status endpoint. Passthrough selections
// never update it, since they carry no model-routing decision of their
// own to report.
type ActiveSelection struct {
	value atomic.Value
}

func NewActiveSelection() *ActiveSelection {
	return &ActiveSelection{}
}

func (a *ActiveSelection) Get() (router.Selection, bool) {
	v := a.value.Load()
	if v == nil {
		return router.Selection{}, false
	}
	return v.(router.Selection), true
}

// Set records sel as the active selection unless it is a passthrough
// provider, whose selection is never surfaced in status output.
func (a *ActiveSelection) Set(sel router.Selection) {
	switch sel.Provider {
	case router.ProviderPassthroughAnthropic, router.ProviderPassthroughGLM:
		return
	}
	a.value.Store(sel)
}
