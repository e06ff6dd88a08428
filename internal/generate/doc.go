// Package generate defines the artifact generator collaborator.
//
// The engine calls a Generator from a detached background task, never from
// the turn itself. Generators may be slow; WithTimeout bounds them and turns
// an expired deadline into an ordinary error so the artifact moves to the
// error state and normal retry bounds apply.
package generate
