// Package mapreduce defines the opaque user callable a job runs, plus the
// name-keyed registry that stands in for shipping the callable "by value":
// Go has no portable code mobility, so a job names a registered function
// instead, and every worker process is expected to have imported the same
// registrations.
package mapreduce

import (
	"fmt"

	"distcompute/internal/record"
)

// Func is a user map/reduce job. Map is invoked once per map task against
// the task's input chunk (or a nil reader for a generator job); Reduce is
// invoked once by the Job Client against the concatenated shuffle output.
type Func interface {
	// Map reads records from in (nil in generator mode) and writes zero or
	// more output records to out.
	Map(in record.Reader, out record.Writer) error
	// Reduce reads the concatenated map output and writes the final result.
	Reduce(in record.Reader, out record.Writer) error
}

var registry = map[string]Func{}

// Register adds a job function to the registry under name.
func Register(name string, fn Func) {
	registry[name] = fn
}

// Lookup returns the job function registered under name.
func Lookup(name string) (Func, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown job function %q", name)
	}
	return fn, nil
}

func init() {
	Register("wordcount", WordCount{})
}
