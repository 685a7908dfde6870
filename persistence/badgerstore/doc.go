// Package badgerstore implements persistence.Persistence on BadgerDB.
//
// Records live under "rec/<id>" with big-endian ids, so iteration order is
// ascending id order. The id sequence lives under "meta/seq". Every write
// transaction reads and writes the sequence key, which makes concurrent
// writers conflict; conflicting transactions are retried.
//
//	store, err := badgerstore.Open(badgerstore.Config{Path: "/var/lib/classdb"})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
package badgerstore
