// Package harness runs YAML scenarios against a real page cache.
//
// A scenario declares page types in CUE, optional declarative invalidators,
// and a list of steps. Each step calls one cache operation and may carry an
// expect clause. Every run uses a fresh database and a fixed batch id, so
// the resulting trace is deterministic and can be compared against a golden
// file:
//
//	name: chunk_provenance
//	types: |
//	  page: Header: fields: title: string
//	  page: Chunk: fields: text?: string
//	steps:
//	  - op: store
//	    uri: docs/Header:d@1
//	    attributes: {title: Doc}
//	  - op: store
//	    uri: docs/Chunk:c1@1
//	    parent: docs/Header:d@1
//	    expect: {created: true}
//	  - op: children
//	    uri: docs/Header:d@1
//	    expect: {uris: [docs/Chunk:c1@1]}
//	assertions:
//	  - type: final_state
//	    uri: docs/Chunk:c1@1
//	    expect: {valid: true}
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
package harness
