// Package engine is the browse/read surface of the gateway.
//
// An Engine serves one protocol family. It composes a backend.Pool (one
// session per endpoint), a registry.Registry (tags, subscription groups and
// the polling cache) and a registry.Reaper that unsubscribes idle tags.
//
//	eng, err := engine.NewDA(engine.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//
//	results := eng.Read(ctx, "opcda://plc1/Vendor.Server.1", []string{"Line1.Temp"}, time.Second)
//
// Read never fails as a whole. Every requested id yields a Result carrying
// its own success flag and normalized error kind, so one bad item does not
// hide the values of the others.
package engine
