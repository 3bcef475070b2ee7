// Package repository implements typed document repositories over a
// key-value backend with publish/subscribe.
//
// A Repository is a unit of work: documents are created with CreateNew or
// loaded with GetByID, GetAll and GetAllMatching, mutated in place and
// written back with Save, which only writes documents whose serialized
// form differs from what was last loaded or saved.
//
//	rt := repository.NewRuntime(store, connection.NewRegistry(redisconn.Dialer()))
//	members, err := repository.New[Member](rt, opts)
//	m := members.CreateNew()
//	m.ID = "abc" // stored as member:abc
//	m.Title = "Ada"
//	err = members.Save(ctx)
//
// Reads go through the process wide local cache held by the Runtime. The
// cache never lets an older ModifyDate replace a newer one and remembers
// ids the backend does not know (GetAll only). Change notifications keep
// it coherent across processes: for each document type one repository,
// the invalidation owner registered with RegisterInvalidationOwner,
// subscribes to every key of the type. Keyspace notifications refetch the
// key on "set" and purge it on "del"; publish/subscribe notifications carry
// the document itself.
//
// Backend reads are retried up to Options.MaxAttempts times with a linear
// backoff and then fail with a *BackendError. Writes are fire-and-forget.
package repository
