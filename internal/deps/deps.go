package deps

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// Requirement names an external program the player needs at runtime.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement after resolution. Command holds the resolved path
// when Available.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// CheckBinaries resolves each requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		results[i].Requirement = req
		resolved, err := ResolveBinary(req.Command)
		if err != nil {
			results[i].Detail = err.Error()
			continue
		}
		results[i].Command = resolved
		results[i].Available = true
	}
	return results
}

var errNotConfigured = errors.New("command not configured")

// ResolveBinary returns the executable path for name. A name with a slash
// must be an executable file; a bare name is looked up on PATH.
func ResolveBinary(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", errNotConfigured
	case !strings.Contains(name, "/"):
		path, err := exec.LookPath(name)
		if err != nil {
			return "", fmt.Errorf("binary %q not found on PATH", name)
		}
		return path, nil
	}
	info, err := os.Stat(name)
	if err != nil {
		return "", fmt.Errorf("binary %q not found", name)
	}
	if info.IsDir() || unix.Access(name, unix.X_OK) != nil {
		return "", fmt.Errorf("binary %q is not executable", name)
	}
	return name, nil
}
