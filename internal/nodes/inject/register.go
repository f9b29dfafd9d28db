package inject

import "github.com/edgeflow/edgelink/internal/registry"

// Register installs the "inject" node type into reg.
func Register(reg *registry.Registry) error {
	return reg.RegisterFlow("inject", NewInject)
}
