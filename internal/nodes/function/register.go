package function

import "github.com/edgeflow/edgelink/internal/registry"

// Register installs every node type this package implements into reg.
func Register(reg *registry.Registry) error {
	if err := reg.RegisterFlow("change", NewChange); err != nil {
		return err
	}
	if err := reg.RegisterFlow("rbe", NewRbe); err != nil {
		return err
	}
	if err := reg.RegisterFlow("range", NewRange); err != nil {
		return err
	}
	return nil
}
