package query

import "time"

// Report sources reported to Recorder.ReportServed.
const (
	SourceCache    = "cache"
	SourceStore    = "store"
	SourceComputed = "computed"
)

// Recorder receives engine measurements. Implemented by the metrics layer.
type Recorder interface {
	ObserveLoad(d time.Duration)
	ReportServed(source string)
	AchievementUnlocked(ruleKey string)
	RuleFailed(ruleKey string)
	UnlockWriteFailed()
}

// NopRecorder discards all measurements.
type NopRecorder struct{}

func (NopRecorder) ObserveLoad(time.Duration)  {}
func (NopRecorder) ReportServed(string)        {}
func (NopRecorder) AchievementUnlocked(string) {}
func (NopRecorder) RuleFailed(string)          {}
func (NopRecorder) UnlockWriteFailed()         {}
