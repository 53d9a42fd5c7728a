package eod

import (
	"time"

	"stock-autotrader/internal/interfaces"
)

var defaultSummarizer interfaces.EodSummarizer = &eodSummarizer{}

// NewSummarizer returns a summarizer over the daily trade log files.
func NewSummarizer() interfaces.EodSummarizer { return &eodSummarizer{} }

// SetDefaultSummarizer overrides the package-level summarizer, mainly for tests.
func SetDefaultSummarizer(s interfaces.EodSummarizer) {
	if s != nil {
		defaultSummarizer = s
	}
}

func SummarizeDay(t time.Time) (string, error) { return defaultSummarizer.SummarizeDay(t) }
func SummarizeToday() (string, error)          { return defaultSummarizer.SummarizeToday() }
func ShouldRunNow() (bool, string)             { return defaultSummarizer.ShouldRunNow() }
