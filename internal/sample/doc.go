// Package sample implements the deterministic sample program that the
// mutation harness uses as its reference fixture.
//
// The program greets the world, upper-cases a fixed list of fruit names,
// counts to three and prints a sum. Pure helpers (Greet, AddNumbers) are kept
// apart from the single output boundary (Run, PrintUpper), which always
// writes to an io.Writer so tests can capture the output.
package sample
