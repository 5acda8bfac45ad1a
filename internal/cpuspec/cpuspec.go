// Package cpuspec picks interpreter thread counts from the host CPU.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

var (
	intelCore  = regexp.MustCompile(`core.*i[3579]-(1[234]\d00)`)
	intelUltra = regexp.MustCompile(`core.*ultra\s+[579]\s+(?:processor\s+)?(2[0-9]5)`)
	appleChip  = regexp.MustCompile(`apple\s+(m[1-4](?:\s+(?:pro|max|ultra))?)`)
)

// performance core counts of hybrid parts, keyed by model or chip name
var hybridCores = map[string]int{
	"12900": 8, "12700": 8, "12600": 6, "12400": 6, "12100": 4,
	"13900": 8, "13700": 8, "13600": 6, "13500": 6, "13400": 6, "13100": 4,
	"14900": 8, "14700": 8, "14600": 6, "14400": 6, "14100": 4,
	"285": 8, "265": 8, "255": 8, "235": 6, "225": 4,
	"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
	"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
	"m3": 4, "m3 pro": 8, "m3 max": 12, "m3 ultra": 24,
	"m4": 6, "m4 pro": 8, "m4 max": 12,
}

// Spec describes the host CPU
type Spec struct {
	BrandName        string
	PerformanceCores int // 0 when unknown or not a hybrid part
	PhysicalCores    int
	LogicalCores     int
}

// Detect reads the host CPU description.
func Detect() Spec {
	return Spec{
		BrandName:        cpuid.CPU.BrandName,
		PerformanceCores: performanceCores(cpuid.CPU.BrandName),
		PhysicalCores:    cpuid.CPU.PhysicalCores,
		LogicalCores:     cpuid.CPU.LogicalCores,
	}
}

// Threads returns the interpreter thread count for this CPU. Hybrid parts
// use their performance cores only.
func (s Spec) Threads() int {
	available := runtime.NumCPU()
	for _, n := range []int{s.PerformanceCores, s.PhysicalCores, s.LogicalCores} {
		if n > 0 {
			return min(n, available)
		}
	}
	return available
}

// InferenceThreads returns configured when positive, otherwise the
// thread count suggested by the host CPU.
func InferenceThreads(configured int) int {
	if configured > 0 {
		return configured
	}
	return Detect().Threads()
}

func performanceCores(brand string) int {
	brand = strings.ToLower(brand)
	for _, re := range []*regexp.Regexp{intelCore, intelUltra, appleChip} {
		if m := re.FindStringSubmatch(brand); m != nil {
			return hybridCores[m[1]]
		}
	}
	return 0
}
