package main

import (
	"strings"
	"testing"
)

const referencePackaging = `project:
  name: demo
  version: 1.0.0
  authors: [Demo Team]
profiles:
  - name: dist
    kind: archive
    artifacts:
      - path: app.txt
  - name: pkg
    kind: deb
    deb:
      assemblerRef: dist
`

func TestExecuteValidate_PrintsPhases(t *testing.T) {
	defer func() { verbose = false }()
	path := writePackaging(t, referencePackaging, nil)

	out, err := execute(t, "validate", "-v", path)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	for _, want := range []string{
		"Project: demo 1.0.0",
		"Phase 1:\n  dist (archive)\n    artifact app.txt",
		"Phase 2:\n  pkg (deb) uses=dist",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExecuteValidate_UnknownProfile(t *testing.T) {
	defer resetBuildFlags()
	path := writePackaging(t, referencePackaging, nil)

	_, err := execute(t, "validate", "--profile", "nope", path)
	if err == nil || !strings.Contains(err.Error(), "unknown profile") {
		t.Fatalf("expected unknown profile error, got %v", err)
	}
}

func TestExecuteValidate_SelectedProfilePullsReference(t *testing.T) {
	defer resetBuildFlags()
	path := writePackaging(t, referencePackaging, nil)

	out, err := execute(t, "validate", "-p", "pkg", path)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "  dist (archive)") {
		t.Errorf("referenced profile missing from plan:\n%s", out)
	}
}

func TestExecuteValidate_MissingFile(t *testing.T) {
	if _, err := execute(t, "validate", "does-not-exist.yml"); err == nil {
		t.Fatal("expected error for missing packaging file")
	}
}
