package pipeline

// FileResult is the outcome of one file's pass through the stages. Key is the
// bucket key the file maps to, set even when a stage failed.
type FileResult struct {
	File string
	Key  string
	Err  error
}

type RunReport struct {
	Results   []FileResult
	Succeeded int
	Failed    int
}
