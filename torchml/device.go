// Package torchml implements the training interfaces of package ml on top of
// libtorch (gotorch) and OpenCV (gocv).
package torchml

import (
	"github.com/go-logr/logr"
	"github.com/klauspost/cpuid/v2"
	torch "github.com/wangkuiyi/gotorch"
)

// SelectDevice returns CUDA when libtorch can see a GPU, and the CPU otherwise.
func SelectDevice(log logr.Logger) torch.Device {
	if torch.IsCUDAAvailable() {
		log.Info("CUDA is valid")
		return torch.NewDevice("cuda")
	}
	log.Info("No CUDA found; CPU only",
		"cpu", cpuid.CPU.BrandName,
		"physicalCores", cpuid.CPU.PhysicalCores,
		"logicalCores", cpuid.CPU.LogicalCores,
		"avx2", cpuid.CPU.Supports(cpuid.AVX2))
	return torch.NewDevice("cpu")
}
