// Package functions assembles the built-in tool catalogue.
package functions

import (
	"github.com/ashutoshrp06/toolloop/internal/functions/boxes"
	"github.com/ashutoshrp06/toolloop/internal/imaging"
	"github.com/ashutoshrp06/toolloop/internal/tools"
	"github.com/ashutoshrp06/toolloop/internal/vision"
)

// Deps are the capabilities the built-in tools need.
type Deps struct {
	Locator     vision.Locator
	Drawer      imaging.Drawer
	Coordinates string
}

// Builtin returns the built-in tools in catalogue order.
func Builtin(deps Deps) []tools.Tool {
	return []tools.Tool{
		boxes.NewDetect(deps.Locator, deps.Drawer, deps.Coordinates),
		boxes.NewDraw(deps.Drawer, deps.Coordinates),
	}
}

// NewRegistry builds a registry holding the built-in tools followed by extra.
func NewRegistry(deps Deps, extra ...tools.Tool) (*tools.Registry, error) {
	return tools.NewRegistry(append(Builtin(deps), extra...)...)
}
