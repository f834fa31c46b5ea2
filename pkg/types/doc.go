/*
Package types defines the data model shared by every graphd component: the
property-graph entities (Vertex, Edge), the dynamic property Value variant
and its canonical encoding, the Catalog schema, the Patch/Commit/Snapshot
shapes that connect the rewrite engine to the storage layer, and the Rule/
Strategy IR the rewrite engine interprets.

These types are intentionally free of any storage, planning, or rewriting
logic — every other package imports types but types imports none of them.
*/
package types
