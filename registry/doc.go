// Package registry tracks location records and the snapshots pinning them.
//
// The registry is the only writer of location records. It registers
// locations (deduplicated by content hash), detects changed locations on
// Refresh, links every changed record to its replacement and reclaims
// deprecated records in Cleanup once no live snapshot references them.
//
// A Snapshot is the immutable id set of one client session. As long as it is
// live, every record it references survives cleanup, so readers keep
// resolving against the content they started with:
//
//	snap, res, err := reg.Acquire(ctx, locations)
//	if err != nil {
//	    return err
//	}
//	defer reg.Release(ctx, snap)
//
//	// index res.Added, then
//	err = reg.AfterProcessing(ctx, res.Added)
//
// Every mutating operation runs in exactly one persistence transaction and
// either commits completely or leaves the registry unchanged.
package registry
