// Package example holds the example domain driven by the engine: a paginated
// todo list whose items can be marked as favorite.
//
// The pagination machine loads pages from a TodoAPI and starts one
// mark-as-favorite child machine per toggled item. Both machines turn API
// failures into error states that reset after a delay or on a retry action.
// SimulatedAPI stands in for the remote service with artificial latency and
// injected failures.
package example
