// Package harness runs moment scenarios against a real engine.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: weekly_report
//	description: "Report is generated once and retried after a failure"
//	catalog: ../catalogs/report.yaml
//	subject: fam-1
//	generators:
//	  report:
//	    - error: "upstream down"
//	    - content: { summary: "great week" }
//	steps:
//	  - turn: { videos_uploaded: 3 }
//	    expect:
//	      fired: [videos_ready]
//	      generating: [report]
//	  - advance: 90s
//	    turn: { videos_uploaded: 4 }
//	  - dismiss: card-1
//	    cause: user
//	  - reset: report
//	assertions:
//	  - type: artifact
//	    artifact: report
//	    status: ready
//	    attempt: 2
//	  - type: card
//	    card: welcome_card
//	    dismissed: true
//	  - type: feasible
//	    action: share_report
//	    context: { plan: pro }
//	    expect: true
//
// The catalog path is resolved relative to the scenario file. Generators
// script per-artifact outcomes consumed one per call; unscripted artifacts
// succeed with {"artifact": <id>}.
//
// # Assertion Types
//
//   - artifact: status, attempt, error and content subset of one artifact
//   - attempts: the persisted attempt counter of one artifact
//   - card: latest event card with the given card id, dismissed or not
//   - visible: card ids visible after the last turn, in order
//   - feasible: feasibility of an action against the subject's view
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory store with a fake wall clock and
// sequential card instance ids. After each step the harness waits for
// in-flight generation so traces are reproducible and can be compared with
// golden files.
package harness
