package processor

// Status is the terminal outcome for one document.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusDuplicate Status = "duplicate"
	StatusFailed    Status = "failed"
)

// Stage names the pipeline step a result refers to, for diagnosis.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageDedup    Stage = "dedup"
	StageCreate   Stage = "create"
	StageReview   Stage = "review"
	StageSnippets Stage = "snippets"
	StageMetadata Stage = "metadata"
	StageVisuals  Stage = "visuals"
	StagePersist  Stage = "persist"
	StageIndex    Stage = "index"
)

// Result is the tagged outcome of processing one document. Expected
// conditions (duplicates) are values, not errors; Err is set only for
// failed results and carries the fatal stage.
type Result struct {
	Status  Status
	PaperID string
	Hash    string
	Reason  string
	Stage   Stage
	Err     error
}

func duplicateResult(paperID, hash, reason string) Result {
	return Result{
		Status:  StatusDuplicate,
		PaperID: paperID,
		Hash:    hash,
		Reason:  reason,
	}
}

func failedResult(stage Stage, hash string, err error) Result {
	return Result{
		Status: StatusFailed,
		Hash:   hash,
		Stage:  stage,
		Err:    err,
	}
}
