// Package engine implements reactive, state-scoped state machines.
//
// A Machine holds one current state S and reacts to events E. Side effects
// are declared per state variant and are alive only while the machine is in
// that variant; leaving the variant cancels them.
//
// ARCHITECTURE:
//
// Single-Writer Store Loop:
// Each subscription to States runs exactly one store loop goroutine. It is
// the only writer of state. Everything else talks to it through unbounded
// FIFO queues:
//
//  1. Dispatch enqueues the event into the inbox
//  2. The loop reduces one envelope at a time (events are identity, change
//     requests are applied under their guard)
//  3. The resulting state is emitted unless it equals the last emission
//  4. The loop re-evaluates every side effect's predicate and broadcasts a
//     step (envelope, state, scope open/closed, epoch) to each side effect
//
// Scopes:
// A scope is one window during which a side effect's predicate holds. The
// loop opens a scope on every false→true edge and gives it a fresh epoch.
// A change request carries the epoch of the scope that produced it and is
// reduced only if that scope is still open and the guard still holds against
// the current state. Anything else is discarded silently.
//
// Handlers:
//
//	OnEnter             once per scope, with the entered state
//	On[A]               for every in-scope event of type A
//	Collect             for every item of an external stream, while in scope
//	CollectFromState    for a stream derived from in-scope states
//	OnEnterStartMachine one sub-machine per scope
//	OnStartMachine[A]   one sub-machine per trigger event
//
// Handlers never write state. They return a ChangedState (NoChange, Override,
// Mutate) and the loop applies it.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every reduction is stamped with Clock.Next(). Journals and logs order by
// that sequence, never by wall-clock time.
//
// Contract Errors:
// API misuse (Spec twice, Dispatch without subscriber, a second concurrent
// subscriber) panics with *ContractError. Collaborator failures never do.
package engine
