// Package harness provides scenario-based conformance testing for the
// score ledger.
//
// The harness compiles pipeline definitions, applies a scripted
// sequence of recording operations, saves the bank to an in-memory
// store, loads it back, and validates assertions against the reloaded
// bank. Every scenario therefore covers the persistence round trip as
// well as the in-memory recording semantics.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	pipelines:
//	  - path/to/pipelines.cue
//	ops:
//	  - op: add_step
//	    entity: PEP1
//	    step: search
//	    scores: { XCorr: 2.5 }
//	  - op: add_score
//	    entity: PEP1
//	    score: q-value
//	    value: 0.01
//	    step: rescore
//	  - op: set_meta
//	    entity: PEP1
//	    name: charge
//	    value: 2
//	  - op: merge_result
//	    from: PEP1b
//	    into: PEP1
//	assertions:
//	  - type: score_equals
//	    entity: PEP1
//	    score: XCorr
//	    value: 2.5
//	  - type: history_order
//	    entity: PEP1
//	    steps: [search, rescore]
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - score_equals: most recent value of a score type
//   - score_at_step: value recorded at one exact step
//   - score_and_step: most recent value plus the step that set it
//   - score_missing: no record carries the score type
//   - history_count: number of ledger records
//   - history_order: step ids in application order
//   - meta_equals: metadata attribute value
//   - entity_count: number of results in the bank
//
// # Deterministic Testing
//
// Scenarios execute against an in-memory SQLite database, isolated per
// run. Run tokens default to a fixed value, and the bank snapshot uses
// canonical JSON, so golden file comparison is byte-exact across runs.
//
// # Usage
//
// Load a scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/basic_recording.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Execute it:
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
