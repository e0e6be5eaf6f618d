// Package policy implements the permission layer of the engine: an ordered,
// tiered rule base loaded once at startup and an evaluation engine that maps
// every intercepted action to exactly one of allow, warn, ask or block.
//
// Two pattern languages are used deliberately: shell globs for file paths
// and anchored glob-derived regular expressions for commands (the source
// configuration mixed both styles inconsistently; here the category decides).
package policy
