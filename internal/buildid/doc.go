/*
Package buildid provides the identity types for builds and projects inside a
composite build tree: the colon-separated identity Path locating a build or
project in the tree, and the build Identifier variants used when project
references stay inside one build or cross into another.

The canonical path format is a leading ':' followed by colon-separated
segments, e.g. `:app:services:db`. The bare `:` is the root path.
*/
package buildid
