// Package core defines the shared vocabulary of the runtime: conversation
// messages, capability schemas, tool call requests/results, the provider
// contract and the error taxonomy. Every other package depends on core;
// core depends on nothing but the standard library.
package core
