// Package model defines the domain types and value objects for the
// mutafix CLI.
//
// This package contains pure data structures with no external dependencies.
// Mutation results, build results and verdicts are transient values produced
// during a single mutation session; nothing here is persisted except through
// the report package.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
