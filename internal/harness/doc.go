// Package harness runs scansync scenarios end to end.
//
// A scenario drives the real intake, store and coordinator against a
// scripted tracking API and asserts on the resulting trace and final queue.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: offline_then_restored
//	description: "A scan taken offline is delivered once the API is back"
//	setup:
//	  online: false
//	flow:
//	  - submit: { operator: A, container: B1, shipment: T1 }
//	    expect: { result: queued_offline }
//	  - server: online
//	  - connectivity: online
//	assertions:
//	  - type: queue_length
//	    count: 0
//
// Each flow step performs exactly one of:
//
//   - submit: scan through intake; expect.result checks the intake result
//   - server: make the API "online" or "offline" (connections are dropped)
//   - respond: queue scripted responses for the next submissions
//   - connectivity: deliver a connectivity event to the coordinator
//   - sync: run a manual drain; expect checks the drain report
//   - login / logout: change the stored session
//   - restart: close and reopen the store and coordinator
//
// # Assertion Types
//
//   - queue_length: pending records equal count
//   - quarantined: quarantined containers equal containers (in order)
//   - attempt_count: attempts (optionally for one container) equal count
//   - attempt_order: containers were attempted in this relative order
//   - attempt_contains: some attempt of container had outcome
//
// Traces contain no ids or timestamps, so a trace can be compared against a
// golden file under testdata/golden.
package harness
