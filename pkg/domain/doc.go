// Package domain defines the core types and contracts of the interception container.
//
// This package contains pure domain logic with ZERO external dependencies outside the
// Go standard library. It describes:
//
// - Build keys and the hierarchical policy lookup consumed by every strategy
// - Constructors, constructor signatures and constructor selection results
// - Interceptors, proxy types and interception behaviors
// - The build context handed to strategies during a build
//
// Other packages (storage, engine, interception, proxy, behaviors) implement the
// interfaces defined here and depend on these types. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
