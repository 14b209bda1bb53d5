package proxy

import (
	"fmt"
	"strconv"
	"strings"
)

// byteRange is an inclusive, fully-resolved [start, end] byte range.
type byteRange struct {
	start int64
	end   int64
}

// length returns the number of bytes covered, both ends inclusive.
func (r byteRange) length() int64 { return r.end - r.start + 1 }

// errRangeNotSatisfiable signals the parsed range falls entirely beyond
// totalSize; the caller returns 416 with Content-Range: bytes */totalSize.
var errRangeNotSatisfiable = fmt.Errorf("range not satisfiable")

// parseRange resolves a "Range: bytes=a-b" header against totalSize,
// normalizing the spec's three forms: "start-end", open-ended "start-"
// (normalized to totalSize-1), and absent headers (treated as the whole
// file, "bytes=0-totalSize-1").
func parseRange(header string, totalSize int64) (byteRange, error) {
	if header == "" {
		if totalSize <= 0 {
			return byteRange{start: 0, end: 0}, nil
		}
		return byteRange{start: 0, end: totalSize - 1}, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return byteRange{}, fmt.Errorf("unsupported range unit in %q", header)
	}
	// Only the first range is honored; multi-range requests are rare for
	// media players and spec §4.F does not ask for multipart responses.
	spec = strings.Split(spec, ",")[0]

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return byteRange{}, fmt.Errorf("malformed range %q", header)
	}

	startStr, endStr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

	var start, end int64
	var err error

	switch {
	case startStr == "" && endStr != "":
		// Suffix range "bytes=-500": last 500 bytes.
		suffixLen, perr := strconv.ParseInt(endStr, 10, 64)
		if perr != nil {
			return byteRange{}, fmt.Errorf("malformed suffix range %q", header)
		}
		if totalSize <= 0 {
			return byteRange{}, fmt.Errorf("suffix range requires known total size")
		}
		start = totalSize - suffixLen
		if start < 0 {
			start = 0
		}
		end = totalSize - 1

	case endStr == "":
		start, err = strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return byteRange{}, fmt.Errorf("malformed range %q", header)
		}
		if totalSize <= 0 {
			return byteRange{}, fmt.Errorf("open-ended range requires known total size")
		}
		end = totalSize - 1

	default:
		start, err = strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return byteRange{}, fmt.Errorf("malformed range %q", header)
		}
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return byteRange{}, fmt.Errorf("malformed range %q", header)
		}
	}

	if start < 0 || end < start {
		return byteRange{}, fmt.Errorf("malformed range %q", header)
	}

	if totalSize > 0 && start >= totalSize {
		return byteRange{}, errRangeNotSatisfiable
	}
	if totalSize > 0 && end > totalSize-1 {
		end = totalSize - 1
	}

	return byteRange{start: start, end: end}, nil
}
