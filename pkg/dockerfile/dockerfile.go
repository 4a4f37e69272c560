// Package dockerfile renders the build manifest for a descriptor.
//
// Generation is pure and deterministic: the same descriptor always yields
// the same bytes, and instruction order is a compatibility contract that
// downstream image tooling depends on. The exact spacing of the rendered
// instructions, including the double space after EXPOSE and after the run
// command, is part of that contract.
package dockerfile

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"skiff/docker/pkg/model"
)

// Filename is the manifest's name inside a staged build context.
const Filename = "Dockerfile"

const (
	artifactDir     = "/home/skiff"
	maintainerLabel = `LABEL maintainer="dev@skiff.dev"`
	runPrefix       = "CMD skiff run "
)

// Generate renders the manifest for d.
//
// Instructions appear in this order: header, FROM, maintainer label, the
// artifact COPY, one COPY per descriptor file in declaration order, EXPOSE
// (services with ports only), and the run instruction. The run instruction
// carries a --config flag per config file in declaration order, a --debug
// flag when debugging is enabled, and ends with the artifact name.
func Generate(d model.BuildDescriptor) string {
	var b strings.Builder

	b.WriteString("# Auto Generated Dockerfile\n\n")
	fmt.Fprintf(&b, "FROM %s\n", d.BaseImage)
	b.WriteString(maintainerLabel + "\n\n")
	fmt.Fprintf(&b, "COPY %s %s \n\n", d.ArtifactName, artifactDir)

	for _, f := range d.Files {
		fmt.Fprintf(&b, "COPY %s %s\n", filepath.Base(f.Source), f.Target)
	}

	if d.IsService && len(d.Ports) > 0 {
		b.WriteString("EXPOSE ")
		for _, p := range exposedPorts(d.Ports) {
			fmt.Fprintf(&b, " %d", p)
		}
		b.WriteString("\n\n")
	}

	b.WriteString(runPrefix)
	for _, f := range d.Files {
		if f.IsConfigFile {
			fmt.Fprintf(&b, " --config %s", f.Target)
		}
	}
	if d.Debug.Enabled {
		fmt.Fprintf(&b, " --debug %d", d.DebugPort())
	}
	fmt.Fprintf(&b, " %s\n", d.ArtifactName)

	return b.String()
}

// exposedPorts returns the ports in ascending order with duplicates
// dropped, so EXPOSE renders identically no matter how the caller ordered
// them.
func exposedPorts(ports []int) []int {
	seen := make(map[int]struct{}, len(ports))
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
