/*
Package definition holds the immutable descriptor of a build: its root
directory, name, projects, task declarations, declared dependency
substitutions and, for a composite root, the builds it includes.

A Definition is immutable by construction. The launcher factory consumes the
value directly; there is no defensive copying because nothing can mutate a
Definition after the loader has produced it.

Definitions are loaded from HCL settings files, e.g.:

	build {
	  name = "child-a"
	}

	project ":lib" {
	  group   = "com.acme"
	  module  = "lib"
	  version = "1.0.0"
	}

	task ":lib:compile" {
	  depends_on = [":lib:generate"]
	}

	substitute {
	  module  = "com.acme:lib"
	  project = ":lib"
	}
*/
package definition
