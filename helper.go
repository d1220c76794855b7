// SPDX-License-Identifier: MIT

package main

import (
	"sort"

	log "github.com/sirupsen/logrus"
)

func setLogLevel(l string) {
	switch l {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "fatal":
		log.SetLevel(log.FatalLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// uniquePercentiles sorts ps and drops duplicates and values outside (0,100].
func uniquePercentiles(ps []float64) []float64 {
	res := make([]float64, 0, len(ps))
	for _, p := range ps {
		if p > 0 && p <= 100 {
			res = append(res, p)
		}
	}
	sort.Float64s(res)

	out := res[:0]
	for i, p := range res {
		if i == 0 || p != res[i-1] {
			out = append(out, p)
		}
	}
	return out
}
