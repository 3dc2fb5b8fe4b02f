// Package sf collapses concurrent lookups of the same key into one.
//
// The proxy uses it so that many tasks resolving the same persistent id
// cause a single location lookup:
//
//	lookups := sf.New[actorid.ActorID]()
//	res, err := fiber.Await(ctx, lookups.DoChan(key, func() (actorid.ActorID, error) {
//	    return locator.Locate(context.Background(), id)
//	}))
package sf
