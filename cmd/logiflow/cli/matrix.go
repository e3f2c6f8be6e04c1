package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/logiflow/logiflow/internal/permissions"
)

// MatrixOptions configures the matrix command output.
type MatrixOptions struct {
	Role       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// MatrixCommand prints the role×module permission matrix, optionally narrowed
// to one role. It returns a process exit code.
func MatrixCommand(opts MatrixOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	roles := permissions.Roles()
	if opts.Role != "" {
		role, ok := permissions.ParseRole(opts.Role)
		if !ok {
			fmt.Fprintf(opts.Stderr, "matrix: unknown role %q\n", opts.Role)
			return 2
		}
		roles = []permissions.Role{role}
	}

	if opts.JSONOutput {
		out := make(map[permissions.Module]map[permissions.Role]permissions.ActionSet, len(permissions.Modules()))
		for _, m := range permissions.Modules() {
			row := make(map[permissions.Role]permissions.ActionSet, len(roles))
			for _, r := range roles {
				row[r] = permissions.Lookup(m, r)
			}
			out[m] = row
		}
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(opts.Stderr, "matrix: %v\n", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	header := []string{"MODULE"}
	for _, r := range roles {
		header = append(header, strings.ToUpper(string(r)))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, m := range permissions.Modules() {
		cells := []string{string(m)}
		for _, r := range roles {
			set := permissions.Lookup(m, r)
			if set.IsEmpty() {
				cells = append(cells, "-")
				continue
			}
			names := make([]string, 0, set.Len())
			for _, a := range set.Actions() {
				names = append(names, string(a))
			}
			cells = append(cells, strings.Join(names, ","))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(opts.Stderr, "matrix: %v\n", err)
		return 1
	}
	return 0
}
