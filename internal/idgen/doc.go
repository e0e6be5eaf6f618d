// Package idgen centralises identifier generation so tests can install a
// deterministic stub instead of patching uuid call-sites one by one.
package idgen
