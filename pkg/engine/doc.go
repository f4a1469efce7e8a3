// Package engine implements the staged build strategy chain that constructs
// registered types.
//
// Architecture:
//
// executor.go           - Builder: strategy registry, forward walk and reverse unwind
// context.go            - build context handed to strategies, nested builds
// strategies_builtin.go - lifetime and creation strategies
// selector.go           - default constructor selection and parameter policies
// resolvers.go          - constructor parameter resolvers
//
// Interception plugs into the chain at the pre-creation stage (see package interception).
package engine
