package sandbox

import (
	"regexp"
	"strconv"
	"strings"
)

// attemptResult is the parsed view of one attempt's result and output logs
type attemptResult struct {
	InstallOK bool
	HealthOK  bool
	Passed    int
	Failed    int
	Errors    int
	RanTests  bool
	ExitOK    bool
}

var (
	passedRe = regexp.MustCompile(`(\d+) passed`)
	failedRe = regexp.MustCompile(`(\d+) failed`)
	errorRe  = regexp.MustCompile(`(\d+) error`)
)

// parseResultLog reads the line-oriented result log the launcher writes
func parseResultLog(data []byte) attemptResult {
	res := attemptResult{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "INSTALL=ok":
			res.InstallOK = true
		case line == "HEALTH=ok":
			res.HealthOK = true
		case strings.HasPrefix(line, "PYTEST_EXIT="):
			code := strings.TrimPrefix(line, "PYTEST_EXIT=")
			res.RanTests = code != "skipped"
			res.ExitOK = code == "0" || code == "skipped"
		}
	}
	return res
}

// parseTestCounts scans raw pytest output for the summary counts
func parseTestCounts(output string, res *attemptResult) {
	if m := passedRe.FindStringSubmatch(output); m != nil {
		res.Passed, _ = strconv.Atoi(m[1])
	}
	if m := failedRe.FindStringSubmatch(output); m != nil {
		res.Failed, _ = strconv.Atoi(m[1])
	}
	if m := errorRe.FindStringSubmatch(output); m != nil {
		res.Errors, _ = strconv.Atoi(m[1])
	}
}
