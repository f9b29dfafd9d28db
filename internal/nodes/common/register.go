package common

import "github.com/edgeflow/edgelink/internal/registry"

// Register installs every node type this package implements into reg.
func Register(reg *registry.Registry) error {
	if err := reg.RegisterFlow("link in", NewLinkIn); err != nil {
		return err
	}
	if err := reg.RegisterFlow("link out", NewLinkOut); err != nil {
		return err
	}
	if err := reg.RegisterFlow("link call", NewLinkCall); err != nil {
		return err
	}
	if err := reg.RegisterFlow("catch", NewCatch); err != nil {
		return err
	}
	if err := reg.RegisterFlow("complete", NewComplete); err != nil {
		return err
	}
	if err := reg.RegisterFlow("status", NewStatus); err != nil {
		return err
	}
	if err := reg.RegisterFlow("test-once", NewTestOnce); err != nil {
		return err
	}
	reg.SetUnknownFallbacks(NewUnknownFlow, NewUnknownGlobal)
	return nil
}
