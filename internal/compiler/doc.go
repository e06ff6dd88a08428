// Package compiler turns catalog documents into an immutable ir.Catalog.
//
// A catalog document declares moments, artifacts, actions and state cards.
// It may be written in YAML (decoded with gopkg.in/yaml.v3, unknown fields
// rejected) or CUE (evaluated with cuelang.org/go). Both decode into the same
// Document and go through the same compile step:
//
//  1. Validate: collect every ConfigError (ids, references, card settings)
//  2. Compile every condition expression into a typed tree
//  3. Reject artifact dependency cycles (Tarjan SCC)
//  4. Hash the raw document for artifact provenance
//
// Configuration errors are fatal: the engine must not start with a catalog
// that failed to compile.
package compiler
