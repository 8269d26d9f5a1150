// Command reconcile normalizes LodgeTix registrations in MongoDB, resolves
// their tickets against the reference collections and reports what does not
// add up.
package main

import (
	"os"
)

func main() {
	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	os.Exit(a.execute(os.Args[1:]))
}
