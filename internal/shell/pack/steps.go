package pack

import (
	"fmt"
	"strings"

	"github.com/artpar/mediaforge/internal/core/manifest"
)

// =============================================================================
// Build Steps
// =============================================================================

// Step is one shell command run inside the build container. Steps run in
// order and the build aborts on the first non-zero exit code.
type Step struct {
	Name    string
	Command string
}

// Cmd returns the command in exec form, wrapped in a shell so that manifest
// commands can use pipes and &&.
func (s Step) Cmd() []string {
	return []string{"sh", "-c", s.Command}
}

// Plan derives the ordered step list from a manifest: OS packages first,
// interpreter packages second, extra commands, then the packaging step.
func Plan(m *manifest.Manifest) []Step {
	var steps []Step

	if len(m.OSPackages) > 0 {
		steps = append(steps, Step{
			Name:    "install os packages",
			Command: osInstallCommand(m.OSInstaller, m.OSPackages),
		})
	}

	if len(m.Packages) > 0 {
		steps = append(steps, Step{
			Name:    "install packages",
			Command: "pip install --no-cache-dir " + strings.Join(m.Packages, " "),
		})
	}

	for i, cmd := range m.Commands {
		steps = append(steps, Step{
			Name:    fmt.Sprintf("command %d", i+1),
			Command: cmd,
		})
	}

	steps = append(steps, Step{
		Name:    "package",
		Command: packageCommand(m),
	})

	return steps
}

func osInstallCommand(installer string, packages []string) string {
	pkgs := strings.Join(packages, " ")
	switch installer {
	case "apk":
		return "apk add --no-cache " + pkgs
	default:
		return "apt-get update && apt-get install -y --no-install-recommends " + pkgs
	}
}

func packageCommand(m *manifest.Manifest) string {
	if m.PackageCommand != "" {
		return m.PackageCommand
	}
	return fmt.Sprintf("pyinstaller --onefile --name %s %s", m.Name, m.Entrypoint)
}
