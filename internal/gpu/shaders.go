// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

//go:embed shaders/clear.wgsl
var shaderClear string

//go:embed shaders/opaque_depth.wgsl
var shaderOpaqueDepth string

//go:embed shaders/opaque_color.wgsl
var shaderOpaqueColor string

//go:embed shaders/count.wgsl
var shaderCount string

//go:embed shaders/scan_load.wgsl
var shaderScanLoad string

//go:embed shaders/scan_reduce.wgsl
var shaderScanReduce string

//go:embed shaders/scan_top.wgsl
var shaderScanTop string

//go:embed shaders/scan_push.wgsl
var shaderScanPush string

//go:embed shaders/dynamic_store.wgsl
var shaderDynamicStore string

//go:embed shaders/list_build.wgsl
var shaderListBuild string

//go:embed shaders/bounded_build.wgsl
var shaderBoundedBuild string

//go:embed shaders/resolve.wgsl
var shaderResolve string

//go:embed shaders/composite.wgsl
var shaderComposite string

// Kernel identifies one compute shader.
type Kernel int

const (
	KernelClear Kernel = iota
	KernelOpaqueDepth
	KernelOpaqueColor
	KernelCount
	KernelScanLoad
	KernelScanReduce
	KernelScanTop
	KernelScanPush
	KernelDynamicStore
	KernelListBuild
	KernelBoundedBuild
	KernelResolve
	KernelComposite

	numKernels
)

var kernelNames = [numKernels]string{
	KernelClear:        "clear",
	KernelOpaqueDepth:  "opaque_depth",
	KernelOpaqueColor:  "opaque_color",
	KernelCount:        "count",
	KernelScanLoad:     "scan_load",
	KernelScanReduce:   "scan_reduce",
	KernelScanTop:      "scan_top",
	KernelScanPush:     "scan_push",
	KernelDynamicStore: "dynamic_store",
	KernelListBuild:    "list_build",
	KernelBoundedBuild: "bounded_build",
	KernelResolve:      "resolve",
	KernelComposite:    "composite",
}

var kernelSources = [numKernels]*string{
	KernelClear:        &shaderClear,
	KernelOpaqueDepth:  &shaderOpaqueDepth,
	KernelOpaqueColor:  &shaderOpaqueColor,
	KernelCount:        &shaderCount,
	KernelScanLoad:     &shaderScanLoad,
	KernelScanReduce:   &shaderScanReduce,
	KernelScanTop:      &shaderScanTop,
	KernelScanPush:     &shaderScanPush,
	KernelDynamicStore: &shaderDynamicStore,
	KernelListBuild:    &shaderListBuild,
	KernelBoundedBuild: &shaderBoundedBuild,
	KernelResolve:      &shaderResolve,
	KernelComposite:    &shaderComposite,
}

// Kernels returns every kernel in declaration order.
func Kernels() []Kernel {
	out := make([]Kernel, numKernels)
	for i := range out {
		out[i] = Kernel(i)
	}
	return out
}

// String returns the kernel's file name without extension.
func (k Kernel) String() string {
	if k >= 0 && k < numKernels {
		return kernelNames[k]
	}
	return fmt.Sprintf("Kernel(%d)", int(k))
}

// Source returns the kernel's embedded WGSL source.
func (k Kernel) Source() string {
	if k < 0 || k >= numKernels {
		return ""
	}
	return *kernelSources[k]
}

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// CompileSPIRV translates the kernel's WGSL into SPIR-V words.
func CompileSPIRV(k Kernel) ([]uint32, error) {
	src := k.Source()
	if src == "" {
		return nil, fmt.Errorf("gpu: missing shader source for %s", k)
	}
	spirv, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile %s: %w", k, err)
	}
	if len(spirv) < 4 || len(spirv)%4 != 0 {
		return nil, fmt.Errorf("gpu: compile %s: malformed SPIR-V of %d bytes", k, len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("gpu: compile %s: bad SPIR-V magic %#08x", k, words[0])
	}
	return words, nil
}
