package metrics

// Operation names shared by the collectors.
const (
	// OpListFiles lists a repository tree on the hub.
	OpListFiles = "list_files"
	// OpDownload fetches one file from the hub.
	OpDownload = "download"
	// OpMetadata reads a metadata.csv label table.
	OpMetadata = "metadata"

	OpDecode   = "decode"
	OpResample = "resample"
	OpTrim     = "trim"
	OpNormal   = "normalize"
	OpAssemble = "assemble"
	OpConvert  = "convert"
	OpSplit    = "split"
	OpPrune    = "prune"
	OpCheck    = "check"

	// OpFeatures extracts an embedding from a clip.
	OpFeatures = "features"
	// OpModelLoad loads a TFLite front end.
	OpModelLoad = "model_load"
	// OpTrain fits a classification head.
	OpTrain = "train"
	// OpEpoch is one pass over the training set.
	OpEpoch = "epoch"

	// OpEvaluate scores a checkpoint on a test split.
	OpEvaluate = "evaluate"
	// OpPersist stores a report in the database.
	OpPersist = "persist"
)

// Status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)
