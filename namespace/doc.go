// Package namespace implements the concurrent package/class tree.
//
// Every class entry is owned by one location id. The same class name may be
// present under many ids (one per location version that contains it); a
// lookup resolves the name against the ids visible to a caller:
//
//	tree := namespace.New()
//	tree.AddClass("java.lang.String", 1)
//	tree.AddClass("com.acme.Main", 7)
//
//	c := tree.FindClassFunc("java.lang.String", snapshot.Contains)
//
// Package nodes are created on demand with insert-if-absent semantics and are
// never pruned. Each node holds its own concurrent maps, so unrelated
// packages and classes never contend.
package namespace
