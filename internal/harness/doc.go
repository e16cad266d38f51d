// Package harness runs YAML gateway scenarios against a fresh store.
//
// A scenario is a sequence of calls through the request router, each with an
// optional expected outcome, followed by assertions over the call trace and
// the final contents of the store.
//
// # Scenario Format
//
//	name: bill_sequence
//	description: "Bill numbers are gap-free"
//	clock: "2024-05-01T12:00:00Z"
//	setup:
//	  - call: POST /products
//	    body: { name: Tea, price_cents: 2000 }
//	flow:
//	  - call: POST /bills
//	    body: { items: [{ product_id: 1, product_name: Tea, unit_price_cents: 2000, qty: 2 }] }
//	    expect:
//	      result: { bill_no: MNE-000001 }
//	  - call: POST /bills
//	    body: { items: [] }
//	    expect:
//	      error: NO_VALID_ITEMS
//	assertions:
//	  - type: trace_count
//	    call: POST /bills
//	    count: 2
//	  - type: final_state
//	    table: settings
//	    where: { key: bill_seq }
//	    expect: { value: "1" }
//
// # Assertion Types
//
//   - trace_contains: a call appears in the trace with a matching body
//   - trace_order: calls appear in the given order
//   - trace_count: a call appears exactly N times
//   - final_state: exactly one row matches and carries the expected values
//
// # Determinism
//
// Each run uses a scratch directory, a fixed clock and fixed request ids.
// The scratch directory is written as $DATA_DIR in bodies, paths and
// recorded results, so traces are byte-stable for golden comparison.
package harness
