/*
Package included implements the orchestration engine for one included build
inside a composite build.

A Build owns the included build's identity, its dependency-substitution
rules, the lazily created single-use launcher handle, and the coordination of
task execution against the shared worker-lease pool. The launcher handle
moves through three states: not yet created, active, and stale. A handle
supports exactly one execute cycle; it is marked stale after every Execute,
success or failure, and replaced on the next one. All lifecycle-mutating
operations of one Build are serialized behind a single mutex; distinct
included builds proceed fully independently.
*/
package included
