package scan

// Parser converts raw tool output into issues against the scanned file.
type Parser interface {
	Parse(file string, stdout string, stderr string, exitCode int) []Issue
}
