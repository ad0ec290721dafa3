// Package cpuspec sizes the file worker pool from the host CPU topology.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// MaxWorkers caps the default pool size. Decoding and inference share memory
// bandwidth, more workers than this stop paying off.
const MaxWorkers = 8

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string
	PhysicalCores    int
	LogicalCores     int
	PerformanceCores int
}

// GetCPUSpec returns the specification of the host CPU.
func GetCPUSpec() CPUSpec {
	return CPUSpec{
		BrandName:        cpuid.CPU.BrandName,
		PhysicalCores:    cpuid.CPU.PhysicalCores,
		LogicalCores:     cpuid.CPU.LogicalCores,
		PerformanceCores: performanceCores(cpuid.CPU.BrandName),
	}
}

// OptimalWorkers returns the default number of concurrently analyzed files.
// Hybrid CPUs use their performance cores, others use physical cores, with
// runtime.NumCPU as the bound for containers and VMs.
func (c CPUSpec) OptimalWorkers() int {
	n := c.PerformanceCores
	if n == 0 {
		n = c.PhysicalCores
	}
	if n == 0 {
		n = runtime.NumCPU() / 2
	}
	return min(max(n, 1), runtime.NumCPU(), MaxWorkers)
}

// DefaultWorkers is GetCPUSpec().OptimalWorkers().
func DefaultWorkers() int {
	return GetCPUSpec().OptimalWorkers()
}

var (
	intelHybrid = regexp.MustCompile(`intel.*core.*i[3579]-(1[234])(\d)00`)
	appleChip   = regexp.MustCompile(`apple\s+m([1-4])\s*(pro|max|ultra)?`)
)

// performanceCores maps known hybrid CPU brand strings to their P-core count.
// Zero means unknown or not hybrid.
func performanceCores(brandName string) int {
	brand := strings.ToLower(brandName)

	if intelHybrid.MatchString(brand) {
		// 12th to 14th gen desktop
		switch {
		case strings.Contains(brand, "i9-"), strings.Contains(brand, "i7-"):
			return 8
		case strings.Contains(brand, "i5-"):
			return 6
		case strings.Contains(brand, "i3-"):
			return 4
		}
	}

	if m := appleChip.FindStringSubmatch(brand); m != nil {
		switch m[2] {
		case "":
			if m[1] == "4" {
				return 6
			}
			return 4
		case "pro":
			return 8
		case "max":
			if m[1] == "1" {
				return 8
			}
			return 12
		case "ultra":
			if m[1] == "1" {
				return 16
			}
			return 24
		}
	}
	return 0
}
