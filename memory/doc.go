// Package memory implements the two memory tiers of the runtime: a bounded
// short-term conversational buffer whose overflow is dropped or summarized,
// and a long-term similarity-searchable store fed by an embedding capability.
package memory
