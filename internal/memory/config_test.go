package memory

import (
	"math"
	"runtime/debug"
	"testing"
)

// restoreMemoryLimit puts the runtime soft limit back after a test changes it.
func restoreMemoryLimit(t *testing.T) {
	t.Helper()
	prev := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })
}

func TestConfigureNoEnvironment(t *testing.T) {
	restoreMemoryLimit(t)

	result := configure("", "", "")
	if result.Configured {
		t.Error("expected Configured=false without any variables")
	}
	if result.Source != "none" {
		t.Errorf("Source = %q, want none", result.Source)
	}
}

func TestConfigureFromContainerLimit(t *testing.T) {
	tests := []struct {
		name      string
		limit     string
		ratio     string
		wantRatio float64
	}{
		{"Default ratio", "1073741824", "", DefaultMemoryRatio},
		{"Custom ratio", "1073741824", "0.5", 0.5},
		{"Ratio of one", "1073741824", "1", 1},
		{"Ratio zero falls back", "1073741824", "0", DefaultMemoryRatio},
		{"Ratio above one falls back", "1073741824", "1.5", DefaultMemoryRatio},
		{"Ratio garbage falls back", "1073741824", "most", DefaultMemoryRatio},
		{"Ratio NaN falls back", "1073741824", "NaN", DefaultMemoryRatio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreMemoryLimit(t)

			result := configure("", tt.limit, tt.ratio)
			if !result.Configured || result.Source != "MEMORY_LIMIT" {
				t.Fatalf("result = %+v", result)
			}
			if result.Ratio != tt.wantRatio {
				t.Errorf("Ratio = %v, want %v", result.Ratio, tt.wantRatio)
			}
			want := int64(float64(1<<30) * tt.wantRatio)
			if result.GoMemLimit != want {
				t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, want)
			}
			if got := debug.SetMemoryLimit(-1); got != want {
				t.Errorf("runtime limit = %d, want %d", got, want)
			}
		})
	}
}

func TestConfigureInvalidContainerLimit(t *testing.T) {
	for _, limit := range []string{"lots", "-1", "0", "512Mi"} {
		t.Run(limit, func(t *testing.T) {
			restoreMemoryLimit(t)
			before := debug.SetMemoryLimit(-1)

			result := configure("", limit, "")
			if result.Configured {
				t.Errorf("expected invalid MEMORY_LIMIT %q to be ignored", limit)
			}
			if after := debug.SetMemoryLimit(-1); after != before {
				t.Errorf("runtime limit changed from %d to %d", before, after)
			}
		})
	}
}

func TestConfigureGOMEMLIMITWins(t *testing.T) {
	restoreMemoryLimit(t)
	debug.SetMemoryLimit(256 << 20)

	result := configure("256MiB", "1073741824", "0.5")
	if result.Source != "GOMEMLIMIT" {
		t.Errorf("Source = %q, want GOMEMLIMIT", result.Source)
	}
	if result.GoMemLimit != 256<<20 {
		t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, 256<<20)
	}
	if result.ContainerLimit != 0 {
		t.Error("MEMORY_LIMIT should not be consulted when GOMEMLIMIT is set")
	}
}

func TestConfigureGOMEMLIMITUnlimited(t *testing.T) {
	restoreMemoryLimit(t)
	debug.SetMemoryLimit(math.MaxInt64)

	result := configure("off", "", "")
	if result.Configured {
		t.Error("an unlimited runtime limit should not count as configured")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{10 << 20, "10.0 MiB"},
		{3 << 30, "3.0 GiB"},
		{1 << 40, "1.0 TiB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
