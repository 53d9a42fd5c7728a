package eod

import (
	"os"
	"path/filepath"
	"time"
)

var jst = time.FixedZone("JST", 9*3600)

func jstNow() time.Time { return time.Now().In(jst) }

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func todaysTradeFile(t time.Time) string {
	d := t.In(jst).Format("2006-01-02")
	return filepath.Join(logDir(), d+".txt")
}

func eodCSVPath(t time.Time) string {
	d := t.In(jst).Format("2006-01-02")
	return filepath.Join(logDir(), "eod", d+".csv")
}
