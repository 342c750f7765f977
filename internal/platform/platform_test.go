package platform

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Tag
		wantErr bool
	}{
		{"", "", false},
		{"linux-x86_64", "linux-x86_64", false},
		{"Linux-AMD64", "linux-x86_64", false},
		{"darwin-arm64", "osx-aarch_64", false},
		{"windows", "windows", false},
		{"solaris-sparc", "", true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFromGo(t *testing.T) {
	if got := FromGo("linux", "amd64"); got != "linux-x86_64" {
		t.Errorf("FromGo(linux, amd64) = %q", got)
	}
	if got := FromGo("darwin", "arm64"); got != "osx-aarch_64" {
		t.Errorf("FromGo(darwin, arm64) = %q", got)
	}
	if Detect().IsEmpty() {
		t.Error("Detect returned an empty tag")
	}
}

func TestIsCompatible(t *testing.T) {
	tests := []struct {
		input, target Tag
		want          bool
	}{
		{"", "linux-x86_64", true},
		{"linux-x86_64", "", true},
		{"linux-x86_64", "linux-x86_64", true},
		{"linux", "linux-aarch_64", true},
		{"linux-x86_64", "linux-aarch_64", false},
		{"osx-x86_64", "linux-x86_64", false},
	}
	for _, tt := range tests {
		if got := tt.input.IsCompatible(tt.target); got != tt.want {
			t.Errorf("%q.IsCompatible(%q) = %v, want %v", tt.input, tt.target, got, tt.want)
		}
	}
}

func TestDebArch(t *testing.T) {
	tests := []struct {
		tag    Tag
		want   string
		wantOK bool
	}{
		{"", "all", true},
		{"linux-x86_64", "amd64", true},
		{"linux-aarch_64", "arm64", true},
		{"linux-ppcle_64", "", false},
		{"linux", "", false},
		{"windows-x86_64", "", false},
	}
	for _, tt := range tests {
		got, ok := tt.tag.DebArch()
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("%q.DebArch() = (%q, %v), want (%q, %v)", tt.tag, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPredicates(t *testing.T) {
	w := Tag("windows-x86_64")
	if !w.IsWindows() || w.IsLinux() || w.ExecutableExt() != ".exe" {
		t.Errorf("unexpected predicates for %q", w)
	}
	m := Tag("osx-aarch_64")
	if !m.IsMac() || m.Arch() != ArchAarch64 || m.ExecutableExt() != "" {
		t.Errorf("unexpected predicates for %q", m)
	}
}
