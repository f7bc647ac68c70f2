package platform

import (
	"testing"
)

func TestNormalizeArch(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"amd64", "amd64", "amd64", false},
		{"x86_64", "x86_64", "amd64", false},
		{"arm64", "arm64", "arm64", false},
		{"aarch64", "aarch64", "arm64", false},
		{"i686", "i686", "386", false},
		{"armv7", "armv7", "arm", false},
		{"riscv unsupported", "riscv64gc", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeArch(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("normalizeArch() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("normalizeArch() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizePlatform(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ubuntu", "ubuntu"},
		{"Ubuntu", "ubuntu"},
		{"  Microsoft Windows Server  ", "microsoft windows server"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizePlatform(tt.input); got != tt.want {
			t.Errorf("normalizePlatform(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestMapFamily(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debian", FamilyDebian},
		{"Ubuntu", FamilyDebian},
		{"rocky", FamilyRHEL},
		{"opensuse", FamilySUSE},
		{"manjaro", FamilyArch},
		{"alpine", FamilyAlpine},
		{"slackware", FamilyUnknown},
		{"", FamilyUnknown},
	}

	for _, tt := range tests {
		if got := mapFamily(tt.input); got != tt.want {
			t.Errorf("mapFamily(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
