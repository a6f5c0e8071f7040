// Package interaction implements the request/response layer of the DA
// bridge protocol on top of package transport.
//
// # Client Usage
//
// The Client correlates responses to requests by message ID and hands
// group callbacks to a handler:
//
//	client := interaction.NewClient(conn)
//	client.SetCallbackHandler(func(cb *wire.Callback) { ... })
//	// conn's transport.Handler forwards frames with client.Dispatch(frame)
//
//	hello, err := client.Hello(ctx, "Matrikon.OPC.Simulation.1", "operator", secret)
//	grp, err := client.CreateGroup(ctx, 1000)
//	handle, err := client.AddItem(ctx, grp.GroupHandle, "Random.Real8", 1)
//
// Failed requests return *StatusError carrying the agent's status code and
// diagnostic message.
//
// # Server Usage
//
// A Server wraps a Handler for one connection. It refuses every operation
// except hello until a hello succeeded:
//
//	srv := interaction.NewServer(handler)
//	resp := srv.HandleRequest(ctx, req)
package interaction
