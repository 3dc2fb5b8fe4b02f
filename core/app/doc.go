// Package app wires a fiber process together with entity placement and
// location lookup, so a service only supplies its handlers and a transport.
//
// # Basic Usage
//
//	a, err := app.Run(app.Config{
//	    ProcessID: 1,
//	    Fibers:    4,
//	    Wire:      wire,
//	    Locations: store,
//	},
//	    dispatch.HandleMsg(onDeposit),
//	    dispatch.HandleRequest(onBalance),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Stop()
//
//	// host entity 123 on the fiber it hashes to and publish its location
//	_, _, err = a.Spawn(ctx, 123, "account", mailbox.OrderedDispatch)
//
//	// address it by persistent id from any fiber of any process
//	err = a.Exec(ctx, func(ctx context.Context) error {
//	    resp, err := proxy.CallAs[Balance](ctx, a.Proxy(), 123, GetBalance{}, true)
//	    ...
//	})
//
// Spawn places entities with rendezvous hashing over the local fibers (see
// [fiber.Process.Place]); Despawn unregisters the location before the entity
// is destroyed, so callers retrying through the proxy find the next
// incarnation instead of a dead one.
package app
