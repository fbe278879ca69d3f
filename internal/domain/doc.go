// Package domain contains the core entities and value objects for casebatch.
//
// This package is the innermost layer of the application. It has no
// dependencies on infrastructure concerns (SQL, HTTP, logging) and contains
// only the case model and its rules.
//
// # Entities
//
//   - [Case]: one unit of work (profile, evidence and comparison parameters)
//     together with its claim and result state
//   - [Result]: the opaque structured payload an executor produces for a case
//   - [Counts]: aggregate queue progress
//
// # Invariants
//
// A case with a result is terminal. A case is claimable only while it has
// neither a claimant nor a result. A claimant without a result is a valid
// state: the case is either in flight or was abandoned by a worker that died.
package domain
