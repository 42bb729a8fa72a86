// Package roster loads the employee hierarchy from its JSON file and
// flattens it into a pre-order arena. Downstream code (matrix build,
// rendering) iterates the arena; nothing walks the tree recursively.
package roster

import (
	"encoding/json"
	"os"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

// Node is one employee in display order. Depth is the distance from a
// root, used as the indent level when rendering.
type Node struct {
	Name     string
	Location model.Location
	Depth    int
}

// Forest is the flattened hierarchy. Nodes are in pre-order: every
// manager directly precedes their subtree, siblings keep file order.
type Forest struct {
	Nodes []Node

	names map[string]bool
}

// Load reads the roster file. Missing or malformed input yields an
// empty forest, never an error: the pipeline treats an empty roster as
// "nothing to do" rather than a failure.
func Load(path string) *Forest {
	data, err := os.ReadFile(path)
	if err != nil {
		appLog.Warn("roster unavailable", "path", path, "err", err.Error())
		return &Forest{}
	}

	roots, err := parseRoots(data)
	if err != nil {
		appLog.Warn("roster unparsable", "path", path, "err", err.Error())
		return &Forest{}
	}
	return FromEmployees(roots)
}

// parseRoots accepts either a JSON array of trees or a single root
// object.
func parseRoots(data []byte) ([]model.Employee, error) {
	var roots []model.Employee
	if err := json.Unmarshal(data, &roots); err == nil {
		return roots, nil
	}
	var single model.Employee
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []model.Employee{single}, nil
}

// FromEmployees flattens the given trees into a forest. The walk is an
// explicit stack, pre-order; children are pushed in reverse so siblings
// come out in input order.
func FromEmployees(roots []model.Employee) *Forest {
	type frame struct {
		emp   model.Employee
		depth int
	}

	f := &Forest{names: map[string]bool{}}
	var stack []frame
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{emp: roots[i], depth: 0})
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		f.Nodes = append(f.Nodes, Node{
			Name:     top.emp.Name,
			Location: model.NormalizeLocation(top.emp.Location),
			Depth:    top.depth,
		})
		f.names[top.emp.Name] = true

		for i := len(top.emp.Reports) - 1; i >= 0; i-- {
			stack = append(stack, frame{emp: top.emp.Reports[i], depth: top.depth + 1})
		}
	}
	return f
}

func (f *Forest) Empty() bool { return len(f.Nodes) == 0 }

func (f *Forest) Len() int { return len(f.Nodes) }

// Has reports whether name is a roster member.
func (f *Forest) Has(name string) bool { return f.names[name] }

// Names returns every employee name in display order.
func (f *Forest) Names() []string {
	out := make([]string, 0, len(f.Nodes))
	for _, n := range f.Nodes {
		out = append(out, n.Name)
	}
	return out
}

// InScope returns the employees a holiday scope applies to, in display
// order. US and France match their locations exactly; Company matches
// everyone, including LocationOther.
func (f *Forest) InScope(s model.HolidayScope) []string {
	var out []string
	for _, n := range f.Nodes {
		switch s {
		case model.ScopeCompany:
			out = append(out, n.Name)
		case model.ScopeUS:
			if n.Location == model.LocationUS {
				out = append(out, n.Name)
			}
		case model.ScopeFrance:
			if n.Location == model.LocationFrance {
				out = append(out, n.Name)
			}
		}
	}
	return out
}
