package domain

// Phase is a coarse position in the daily reporting cycle.
type Phase string

const (
	PhasePrepare Phase = "prepare"
	PhasePublish Phase = "publish"
	PhaseUpdate  Phase = "update"
)

// Dataset selects which snapshot a check pass targets.
type Dataset string

const (
	DatasetWorking Dataset = "working"
	DatasetCurrent Dataset = "current"
	DatasetHistory Dataset = "history"
)

// ParseDataset validates a dataset name.
func ParseDataset(s string) (Dataset, bool) {
	switch d := Dataset(s); d {
	case DatasetWorking, DatasetCurrent, DatasetHistory:
		return d, true
	default:
		return "", false
	}
}
