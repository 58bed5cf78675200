// Package nest makes nested parallel runs keep using a real concurrent
// backend at every depth.
//
// The built-in backends degrade on nesting: one level of threads, then
// sequential execution. For every backend type in a registry, nest derives
// a variant whose nested choice is a fresh instance of the variant itself,
// and registers it under the "nested-" prefixed name:
//
//	if err := nest.Apply(); err != nil {
//		return err
//	}
//	// "nested-pool" is now active; every level of recursion runs on a pool.
//
// Apply also hooks later registrations and wraps lazy external backends, so
// backends that appear after Apply get nested counterparts too.
package nest
