// Package debug gates the precondition checks that are too expensive for
// release builds. Build with -tags=debug to enable them.
package debug

// Assert panics with msg when cond is false. No-op unless the debug build
// tag is set.
func Assert(cond bool, msg string) {
	if Debug && !cond {
		panic(msg)
	}
}
