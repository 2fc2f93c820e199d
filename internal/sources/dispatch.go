package sources

import (
	"context"

	"github.com/modkit/installer/internal/errs"
	"github.com/modkit/installer/internal/progress"
)

// Dispatcher routes a Request to the Handler matching its Source variant
// (§4.4 worker-loop step 3: "Dispatch to the source handler matching the
// request's source variant").
type Dispatcher struct {
	Http     Handler
	Cdn      Handler
	GameFile Handler
	Nexus    Handler
	Manual   Handler
	Archive  Handler
	Unknown  Handler
}

// NewDispatcher wires the always-erroring Manual/Unknown handlers in by
// default; callers override the protocol handlers they actually need.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		Manual:  ManualHandler{},
		Unknown: UnknownHandler{},
	}
}

func (d *Dispatcher) Fetch(ctx context.Context, req Request, reporter progress.Reporter) (Result, error) {
	var h Handler
	switch req.Source.(type) {
	case Http:
		h = d.Http
	case Cdn:
		h = d.Cdn
	case GameFile:
		h = d.GameFile
	case Nexus:
		h = d.Nexus
	case Manual:
		h = d.Manual
	case Archive:
		h = d.Archive
	default:
		h = d.Unknown
	}
	if h == nil {
		return Result{}, &errs.ConfigurationError{Message: "no handler registered for source kind " + req.Source.Kind()}
	}
	return h.Fetch(ctx, req, reporter)
}
