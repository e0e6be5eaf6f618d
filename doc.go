// Package phasegate implements the policy and backpressure engine of an
// SDLC agent workflow: a tiered permission layer deciding allow/warn/ask/
// block for every intercepted tool call, an append-only diagnostic signal
// log answering whether the workflow may stop cleanly, and a phased state
// machine with checkpoint/restore driving multi-agent sessions from
// requirements through release.
//
// The package is a library with no CLI or network surface of its own; the
// host agent runtime, version control and CI providers are external
// collaborators.
package phasegate
