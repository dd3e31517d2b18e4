// Package harness runs YAML scenarios against the pagination machine and
// compares the emitted state trace against golden files.
//
// # Scenario Format
//
//	name: next_page_error_resets
//	description: "What this scenario validates"
//	api:
//	  total_items: 4
//	  page_size: 2
//	  fail_loads: [2]        # 1-based LoadPage calls that fail
//	  fail_marks: ["1"]      # first MarkAsFavorite for these ids fails
//	reset_delay: 20ms
//	steps:
//	  - expect: {state: LoadFirstPage}
//	  - dispatch: next
//	  - expect:
//	      state: ShowContent
//	      where: {items: 2, next_page_loading_state: loading}
//	  - expect:
//	      state: ShowContent
//	      item: {id: "0", favorite_status: favorite}
//	  - quiet: 50ms
//	  - wait: 10ms
//	assertions:
//	  - type: trace_order
//	    states: [LoadFirstPage, ShowContent]
//	  - type: api_calls
//	    method: load_page
//	    count: 2
//
// # Assertion Types
//
//   - trace_contains: a state of the given type matching where was emitted
//   - trace_order: state types were emitted in order, gaps allowed
//   - trace_count: a state type was emitted exactly count times
//   - final_state: the last emitted state has the type and matches where
//   - api_calls: a collaborator method was called exactly count times
//
// # Deterministic Testing
//
// The collaborator has no latency and fails only where the scenario says.
// Machine ids are numbered from the scenario name and every run journals
// into a fresh in-memory SQLite store, which is cross-checked against the
// trace. A scenario whose steps serialize every state change therefore
// produces a byte-identical golden trace on every run.
package harness
