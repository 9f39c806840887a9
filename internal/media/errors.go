package media

import "errors"

// Error kinds surfaced by the pipeline. Stages wrap them with context so
// callers can branch with errors.Is.
var (
	// ErrInvalidFilter reports a malformed facet selection (year min > max).
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrUnknownMediaKind reports a media kind with no collection or model.
	ErrUnknownMediaKind = errors.New("unknown media kind")
	// ErrClassification reports a failure of the intent classifier.
	ErrClassification = errors.New("intent classification failed")
	// ErrEmbedding reports a failure of the dense or sparse embedder.
	ErrEmbedding = errors.New("embedding failed")
	// ErrRetrieval reports an unreachable or failing vector index.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrGeneration reports a failure of the generation backend.
	ErrGeneration = errors.New("generation failed")
)
