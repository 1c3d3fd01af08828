package progress

import "math"

// Stage names a phase of the transcription pipeline. Each stage owns a fixed
// slice of the overall 0-100 progress range.
type Stage string

const (
	StageDownload   Stage = "download"
	StageUpload     Stage = "upload"
	StageProcessing Stage = "processing"
	StageSaving     Stage = "saving"
)

type stageRange struct {
	base  int
	width int
}

// stages is the fixed stage configuration: download 0-35, upload 35-50,
// processing 50-95, saving 95-100.
var stages = map[Stage]stageRange{
	StageDownload:   {base: 0, width: 35},
	StageUpload:     {base: 35, width: 15},
	StageProcessing: {base: 50, width: 45},
	StageSaving:     {base: 95, width: 5},
}

// Value maps a stage-local ratio in [0,1] onto the global 0-100 scale.
// Ratios outside [0,1] are clamped and non-finite ratios count as 0. An
// unknown stage yields ok=false and the caller should skip the update.
func Value(stage Stage, ratio float64) (int, bool) {
	r, ok := stages[stage]
	if !ok {
		return 0, false
	}
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		ratio = 0
	}
	ratio = math.Max(0, math.Min(1, ratio))
	return int(math.Round(float64(r.base) + float64(r.width)*ratio)), true
}
