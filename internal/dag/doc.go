// Package dag provides the task graph of one nested build execution cycle:
// nodes keyed by task path, dependency edges, cycle detection, and a
// worker-pool executor that fails fast and skips dependents of failed tasks.
package dag
