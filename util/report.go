package util

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// WriteHistogram prints a summary of h followed by one bar per bin holding at
// least minPct percent of the samples.
func WriteHistogram(w io.Writer, name, scale string, minPct float64, h *hdrhistogram.Histogram) {
	if w == nil {
		return
	}

	fmt.Fprint(w,
		"----------------------------------------------\n")
	fmt.Fprintf(w,
		"%v histogram name=%s samples=%d scale=%s\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		name, h.TotalCount(), scale,
	)
	if h.TotalCount() == 0 {
		return
	}

	fmt.Fprintf(w,
		"summary min/avg/max/stddev = %d/%.3f/%d/%.3f %s\n",
		h.Min(), h.Mean(), h.Max(), h.StdDev(), scale)
	for _, p := range []float64{50.0, 90.0, 99.0} {
		fmt.Fprintf(w,
			"%.0fth percentile=%d %s\n", p, h.ValueAtPercentile(p), scale)
	}

	var minBinCount, maxBinCount int64 = math.MaxInt64, math.MinInt64
	for _, bin := range h.Distribution() {
		if binPct(bin.Count, h) < minPct {
			continue
		}
		if bin.Count < minBinCount {
			minBinCount = bin.Count
		}
		if bin.Count > maxBinCount {
			maxBinCount = bin.Count
		}
	}

	tabw := tabwriter.NewWriter(w, 2, 2, 2, byte(' '), 0)
	for _, bin := range h.Distribution() {
		pct := binPct(bin.Count, h)
		if pct < minPct || bin.Count == 0 {
			continue
		}

		barSize := 1
		if maxBinCount != minBinCount {
			fraction := float64(bin.Count-minBinCount) /
				float64(maxBinCount-minBinCount)
			barSize = int(math.Ceil(fraction * 10))
			if barSize == 0 {
				barSize = 1
			}
		}

		to := bin.To
		if bin.From == to {
			to++
		}

		fmt.Fprintf(tabw,
			"%d-%d %s\t%.3g%%\t%s\t%s\n",
			bin.From, to, scale, pct,
			strings.Repeat("|", barSize),
			strconv.FormatInt(bin.Count, 10),
		)
	}
	_ = tabw.Flush()
}

func binPct(count int64, h *hdrhistogram.Histogram) float64 {
	return float64(count) * 100.0 / float64(h.TotalCount())
}
