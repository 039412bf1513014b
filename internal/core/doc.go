// Package core holds the data model shared by every agentflow component:
// roles, phases, tasks, agent outputs, validation results, workflow
// configuration and the kind-tagged error taxonomy.
//
// # Enums
//
// Every enum is a string type whose values are lowercase snake_case, so the
// JSON form of any model is stable across releases and round-trips to equal
// values.
//
// # Errors
//
// Failures are tagged with a Kind (configuration, validation, llm, workflow)
// and resolved with Resolve:
//
//	configuration  fail_fast  not recoverable
//	validation     rollback   recoverable
//	llm            retry      recoverable, bounded attempts
//	workflow       rollback   recoverable
//	unknown        escalate   not recoverable
package core
