package stage

import (
	"regexp"
	"strings"
)

// TemplateSuffix marks files rendered rather than copied.
const TemplateSuffix = ".tpl"

// SkipRules exclude templates by name. Every rule is tried as an exact
// name, then as a substring, then as a regular expression, against the
// name both with and without TemplateSuffix.
type SkipRules []string

func (s SkipRules) Skip(name string) bool {
	if len(s) == 0 {
		return false
	}
	candidates := []string{name}
	if trimmed := strings.TrimSuffix(name, TemplateSuffix); trimmed != name {
		candidates = append(candidates, trimmed)
	}

	for _, c := range candidates {
		for _, rule := range s {
			if rule == c {
				return true
			}
		}
	}
	for _, c := range candidates {
		for _, rule := range s {
			if rule != "" && strings.Contains(c, rule) {
				return true
			}
		}
	}
	for _, rule := range s {
		re, err := regexp.Compile("^(?:" + rule + ")$")
		if err != nil {
			continue
		}
		for _, c := range candidates {
			if re.MatchString(c) {
				return true
			}
		}
	}
	return false
}
