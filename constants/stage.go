package constants

// Stage is the canonical processing stage for a CV analysis session.
type Stage string

// Stable values (these exact strings go over the wire to polling clients).
const (
	StageUploadStarted       Stage = "upload_started"
	StageFileValidation      Stage = "file_validation"
	StageGuardrailValidation Stage = "guardrail_validation"
	StageFilePreparation     Stage = "file_preparation"
	StageRemoteUpload        Stage = "remote_upload"
	StageParsing             Stage = "parsing"
	StageEnrichment          Stage = "enrichment"
	StageSkillsExtraction    Stage = "skills_extraction"
	StageGapAnalysis         Stage = "gap_analysis"
	StageFinalizing          Stage = "finalizing"
	StageCompleted           Stage = "completed"
	StageError               Stage = "error"
)

// StageInfo is the user-facing message and progress for a stage.
type StageInfo struct {
	Message  string
	Progress int
}

// stageTable maps each stage to its message and progress. Progress is strictly
// non-decreasing along the happy path; the error stage reports 0.
var stageTable = map[Stage]StageInfo{
	StageUploadStarted:       {Message: "Starting CV upload...", Progress: 5},
	StageFileValidation:      {Message: "Validating your CV file...", Progress: 10},
	StageGuardrailValidation: {Message: "Checking document format...", Progress: 15},
	StageFilePreparation:     {Message: "Preparing your CV for analysis...", Progress: 20},
	StageRemoteUpload:        {Message: "Uploading to AI processing system...", Progress: 30},
	StageParsing:             {Message: "Analyzing your CV content...", Progress: 50},
	StageEnrichment:          {Message: "Enhancing your professional profile...", Progress: 65},
	StageSkillsExtraction:    {Message: "Identifying your skills and expertise...", Progress: 75},
	StageGapAnalysis:         {Message: "Analyzing profile completeness...", Progress: 85},
	StageFinalizing:          {Message: "Finalizing your profile analysis...", Progress: 95},
	StageCompleted:           {Message: "CV analysis complete! Your feedback is ready.", Progress: 100},
	StageError:               {Message: "Something went wrong. Please try again.", Progress: 0},
}

// HappyPath is the ordered stage sequence for a successful run.
var HappyPath = []Stage{
	StageUploadStarted,
	StageFileValidation,
	StageGuardrailValidation,
	StageFilePreparation,
	StageRemoteUpload,
	StageParsing,
	StageEnrichment,
	StageSkillsExtraction,
	StageGapAnalysis,
	StageFinalizing,
	StageCompleted,
}

// Info returns the message and progress for a stage. Unknown stages get a
// neutral mid-progress answer rather than failing the caller.
func Info(s Stage) StageInfo {
	if info, ok := stageTable[s]; ok {
		return info
	}
	return StageInfo{Message: "Processing...", Progress: 50}
}

// Terminal reports whether a stage has no outgoing transitions.
func Terminal(s Stage) bool {
	return s == StageCompleted || s == StageError
}
