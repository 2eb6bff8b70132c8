package sample

import (
	"fmt"
	"io"
	"strings"
)

// Fixed inputs of the sample program. They are package-level so tests and
// the fixture generator agree on the same literals.
const (
	// GuardNumber is compared against GuardThreshold to choose between the
	// greeting and the "Too small" fallback.
	GuardNumber = 5

	// GuardThreshold is the exclusive lower bound for the greeting branch.
	GuardThreshold = 3

	// CounterLimit is the exclusive upper bound of the counting loop.
	CounterLimit = 3

	// Addend values passed to AddNumbers.
	AddendA = 3
	AddendB = 7

	// GreetTarget is the name passed to Greet.
	GreetTarget = "World"
)

// Items returns the ordered fruit list. A fresh slice is returned on every
// call so callers cannot mutate the program's input.
func Items() []string {
	return []string{"apple", "banana", "cherry"}
}

// Greet returns "Hello " followed by name.
func Greet(name string) string {
	message := "Hello " + name
	return message
}

// AddNumbers returns a + b.
func AddNumbers(a, b int) int {
	result := a + b
	return result
}

// ShouldGreet reports whether the greeting branch is taken for number.
//
// The fixture this program was derived from wrapped the comparison in four
// logical negations; they cancel out, leaving the direct comparison.
func ShouldGreet(number int) bool {
	return number > GuardThreshold
}

// PrintUpper writes the upper-cased value to w as a single line.
func PrintUpper(w io.Writer, value string) error {
	upper := strings.ToUpper(value)
	_, err := fmt.Fprintln(w, upper)
	return err
}

// Step is one printable action of the program.
type Step struct {
	// Name identifies the step in error messages.
	Name string

	// Exec writes the step's lines to w.
	Exec func(w io.Writer) error
}

// Steps returns the program as an ordered list of steps. Run executes them
// in this order; nothing else in the package writes output.
func Steps() []Step {
	return []Step{
		{Name: "greeting", Exec: writeGreeting},
		{Name: "items", Exec: writeItems},
		{Name: "counter", Exec: writeCounter},
		{Name: "sum", Exec: writeSum},
	}
}

// Run executes every step in order and writes the program output to w.
//
// The inputs are literals, so the only possible failure is a write error
// from w, which is returned unchanged apart from the step name.
func Run(w io.Writer) error {
	for _, step := range Steps() {
		if err := step.Exec(w); err != nil {
			return fmt.Errorf("sample step %q: %w", step.Name, err)
		}
	}
	return nil
}

func writeGreeting(w io.Writer) error {
	number := GuardNumber
	text := Greet(GreetTarget)

	line := "Too small"
	if ShouldGreet(number) {
		line = text + "!"
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func writeItems(w io.Writer) error {
	for _, item := range Items() {
		if err := PrintUpper(w, item); err != nil {
			return err
		}
	}
	return nil
}

func writeCounter(w io.Writer) error {
	counter := 0
	for counter < CounterLimit {
		if _, err := fmt.Fprintf(w, "Counter: %d\n", counter); err != nil {
			return err
		}
		counter++
	}
	return nil
}

func writeSum(w io.Writer) error {
	sum := AddNumbers(AddendA, AddendB)
	_, err := fmt.Fprintf(w, "Sum = %d\n", sum)
	return err
}
