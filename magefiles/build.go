//go:build mage

package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

var shaderStages = []string{"triangle.vert", "triangle.frag"}

// Compiles the GLSL sources in shaders/ to SPIR-V under assets/shaders/.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the shaders and then the gdemo binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "gdemo"), "."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	out := filepath.Join("assets", "shaders")
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	for _, stage := range shaderStages {
		src := filepath.Join("shaders", stage)
		dst := filepath.Join(out, stage+".spv")
		if _, err := executeCmd("glslc", withArgs(src, "-o", dst), withStream()); err != nil {
			return err
		}
	}
	return nil
}
