// Package matrix expands declared build variants into concrete assignments.
package matrix

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Variable is one named dimension of a matrix.
type Variable struct {
	Name   string
	Values []string
}

// Matrix is either a set of variables combined as a Cartesian product or
// an explicit list of rows. Variables keep their declaration order.
type Matrix struct {
	Vars []Variable          `yaml:"vars,omitempty"`
	Rows []map[string]string `yaml:"rows,omitempty"`
}

// IsEmpty reports whether nothing was declared.
func (m *Matrix) IsEmpty() bool {
	return m == nil || (len(m.Vars) == 0 && len(m.Rows) == 0)
}

// Validate checks that at most one form is populated and that variable
// names are unique.
func (m *Matrix) Validate() error {
	if m == nil {
		return nil
	}
	if len(m.Vars) > 0 && len(m.Rows) > 0 {
		return fmt.Errorf("matrix declares both vars and rows")
	}
	seen := make(map[string]bool)
	for _, v := range m.Vars {
		if v.Name == "" {
			return fmt.Errorf("matrix variable without a name")
		}
		if seen[v.Name] {
			return fmt.Errorf("duplicate matrix variable %q", v.Name)
		}
		seen[v.Name] = true
		if len(v.Values) == 0 {
			return fmt.Errorf("matrix variable %q has no values", v.Name)
		}
	}
	return nil
}

// Resolve returns the ordered assignments a profile must build. Explicit
// rows pass through unchanged. Otherwise the first declared variable
// varies slowest. An empty matrix yields one empty assignment.
func (m *Matrix) Resolve() []map[string]string {
	if m.IsEmpty() {
		return []map[string]string{{}}
	}
	if len(m.Rows) > 0 {
		rows := make([]map[string]string, len(m.Rows))
		for i, row := range m.Rows {
			rows[i] = copyRow(row)
		}
		return rows
	}

	result := []map[string]string{{}}
	for _, v := range m.Vars {
		next := make([]map[string]string, 0, len(result)*len(v.Values))
		for _, partial := range result {
			for _, value := range v.Values {
				row := copyRow(partial)
				row[v.Name] = value
				next = append(next, row)
			}
		}
		result = next
	}
	return result
}

func copyRow(row map[string]string) map[string]string {
	c := make(map[string]string, len(row)+1)
	for k, v := range row {
		c[k] = v
	}
	return c
}

// UnmarshalYAML decodes the vars mapping through yaml.Node so the
// declaration order survives.
func (m *Matrix) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: matrix must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "vars":
			if value.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: matrix vars must be a mapping", value.Line)
			}
			for j := 0; j+1 < len(value.Content); j += 2 {
				var values []string
				if err := value.Content[j+1].Decode(&values); err != nil {
					return fmt.Errorf("line %d: matrix variable %q: %w", value.Content[j].Line, value.Content[j].Value, err)
				}
				m.Vars = append(m.Vars, Variable{Name: value.Content[j].Value, Values: values})
			}
		case "rows":
			if err := value.Decode(&m.Rows); err != nil {
				return fmt.Errorf("line %d: matrix rows: %w", value.Line, err)
			}
		default:
			return fmt.Errorf("line %d: unknown matrix field %q", key.Line, key.Value)
		}
	}
	return nil
}

// MarshalYAML writes vars back as an ordered mapping.
func (m Matrix) MarshalYAML() (interface{}, error) {
	out := &yaml.Node{Kind: yaml.MappingNode}
	if len(m.Vars) > 0 {
		vars := &yaml.Node{Kind: yaml.MappingNode}
		for _, v := range m.Vars {
			var values yaml.Node
			if err := values.Encode(v.Values); err != nil {
				return nil, err
			}
			vars.Content = append(vars.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: v.Name}, &values)
		}
		out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: "vars"}, vars)
	}
	if len(m.Rows) > 0 {
		var rows yaml.Node
		if err := rows.Encode(m.Rows); err != nil {
			return nil, err
		}
		out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: "rows"}, &rows)
	}
	return out, nil
}
