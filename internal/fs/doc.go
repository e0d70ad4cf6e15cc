// Package fs abstracts the file operations of the file-backed collections
// so tests can inject I/O failures.
//
// Production code uses Default:
//
//	f, err := fs.Default.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
//
// Tests wrap it with FaultyFS:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("docs.jsonl", fs.Fault{FailAfterBytes: 10})
package fs
