// Package condition implements the declarative prerequisite language used by
// moments, actions and cards.
//
// Expressions arrive from configuration as loosely typed nested mappings:
//
//	videos_uploaded: ">= 3"
//	profile.name: "!= None"
//	artifacts.report.exists: false
//	OR:
//	  - consent_given: true
//	  - age: ">= 18"
//
// Compile turns such a mapping into a small typed tree (Leaf, And, Or) once,
// at load time. Comparator strings are parsed into a typed Comparator during
// compilation and never re-parsed while evaluating.
//
// SEMANTICS:
//   - Sibling keys at one level are AND-ed.
//   - AND takes a mapping (one nested group) or a list of groups (all must hold).
//   - OR takes a mapping (one nested group) or a list of groups (first true wins).
//     When OR has siblings the level evaluates to (all siblings) OR (the OR
//     clause): OR is an alternative path, not an extra requirement.
//   - Keys are dotted paths resolved through nested mappings.
//   - A key ending in ".exists" checks an artifact-like structure at the path.
//
// Evaluation is a pure function of (expression, context). Problems found while
// evaluating (for example ordering a string against a number) make the
// offending leaf false; Evaluator logs them and never returns an error.
package condition
