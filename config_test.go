package oit

import (
	"errors"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"default", func(*Config) {}, nil},
		{"list texture", func(c *Config) { c.Strategy = StrategyList; c.Backing = BackingTexture }, nil},
		{"bounded texture", func(c *Config) { c.Backing = BackingTexture }, nil},
		{"max samples", func(c *Config) { c.SamplesPerPixel = MaxSamplesPerPixel }, nil},
		{"unknown strategy", func(c *Config) { c.Strategy = 7 }, ErrUnknownStrategy},
		{"zero samples", func(c *Config) { c.SamplesPerPixel = 0 }, ErrInvalidSamples},
		{"too many samples", func(c *Config) { c.SamplesPerPixel = 65 }, ErrInvalidSamples},
		{"zero nodes", func(c *Config) { c.NodesPerPixel = 0 }, ErrInvalidSamples},
		{"dynamic texture", func(c *Config) { c.Strategy = StrategyDynamic; c.Backing = BackingTexture }, ErrUnsupportedBacking},
		{"unknown backing", func(c *Config) { c.Backing = 9 }, ErrUnsupportedBacking},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateSize(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateSize(1920, 1080); err != nil {
		t.Errorf("ValidateSize(1080p) = %v", err)
	}
	if err := cfg.ValidateSize(0, 10); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("ValidateSize(0, 10) = %v, want ErrInvalidSize", err)
	}
	if err := cfg.ValidateSize(1<<15, 1<<15); !errors.Is(err, ErrResolutionOverflow) {
		t.Errorf("ValidateSize(32768^2 x 8) = %v, want ErrResolutionOverflow", err)
	}

	cfg.Strategy = StrategyList
	cfg.NodesPerPixel = 1
	if err := cfg.ValidateSize(1<<15, 1<<15); err != nil {
		t.Errorf("list with 1 node: ValidateSize = %v, want nil", err)
	}
}

func TestStrategy_StringParse(t *testing.T) {
	for _, s := range []Strategy{StrategyBounded, StrategyList, StrategyDynamic} {
		got, err := ParseStrategy(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStrategy(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseStrategy("abuffer"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("ParseStrategy(abuffer) = %v, want ErrUnknownStrategy", err)
	}
	if got := Strategy(42).String(); got != "Strategy(42)" {
		t.Errorf("String() = %q", got)
	}
}

func TestEnums_StringParse(t *testing.T) {
	for _, b := range []Backing{BackingBuffer, BackingTexture} {
		if got, err := ParseBacking(b.String()); err != nil || got != b {
			t.Errorf("ParseBacking(%q) = %v, %v", b, got, err)
		}
	}
	for _, p := range []OverflowPolicy{KeepNearest, KeepFirst, MergeFarthest} {
		if got, err := ParseOverflowPolicy(p.String()); err != nil || got != p {
			t.Errorf("ParseOverflowPolicy(%q) = %v, %v", p, got, err)
		}
	}
	for _, m := range []ListSortMode{SortOnResolve, Unsorted} {
		if got, err := ParseListSortMode(m.String()); err != nil || got != m {
			t.Errorf("ParseListSortMode(%q) = %v, %v", m, got, err)
		}
	}
	if _, err := ParseBacking("image"); !errors.Is(err, ErrUnsupportedBacking) {
		t.Errorf("ParseBacking(image) = %v, want ErrUnsupportedBacking", err)
	}
	if DepthEye.String() != "eye" || DepthNDC.String() != "ndc" {
		t.Error("DepthKey names changed")
	}
}

func TestConfig_WithParam(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name, value string
		check       func(Config) bool
	}{
		{ParamStrategy, "dynamic", func(c Config) bool { return c.Strategy == StrategyDynamic }},
		{ParamSamples, "16", func(c Config) bool { return c.SamplesPerPixel == 16 }},
		{ParamBacking, "texture", func(c Config) bool { return c.Backing == BackingTexture }},
		{ParamOverflow, "merge_farthest", func(c Config) bool { return c.Overflow == MergeFarthest }},
		{ParamListSort, "unsorted", func(c Config) bool { return c.ListSort == Unsorted }},
		{ParamNodes, "4", func(c Config) bool { return c.NodesPerPixel == 4 }},
		{ParamBackend, "software", func(c Config) bool { return c.Backend == "software" }},
		{ParamBackground, "#336699", func(c Config) bool { return c.Background.Packed() == RGB(0.2, 0.4, 0.6).Packed() }},
	}
	for _, tt := range tests {
		got, err := cfg.WithParam(tt.name, tt.value)
		if err != nil {
			t.Errorf("WithParam(%s, %s) error = %v", tt.name, tt.value, err)
			continue
		}
		if !tt.check(got) {
			t.Errorf("WithParam(%s, %s) = %+v", tt.name, tt.value, got)
		}
		if got.Params()[tt.name] != tt.value {
			t.Errorf("Params()[%s] = %q, want %q", tt.name, got.Params()[tt.name], tt.value)
		}
	}

	if _, err := cfg.WithParam(ParamSamples, "many"); !errors.Is(err, ErrInvalidSamples) {
		t.Errorf("WithParam(samples, many) = %v, want ErrInvalidSamples", err)
	}
	if _, err := cfg.WithParam(ParamBackground, "teal"); !errors.Is(err, ErrInvalidColor) {
		t.Errorf("WithParam(background, teal) = %v, want ErrInvalidColor", err)
	}
	if _, err := cfg.WithParam("gamma", "2.2"); err == nil {
		t.Error("WithParam(gamma) should fail")
	}
	if len(ParamNames()) != len(cfg.Params()) {
		t.Errorf("ParamNames() has %d names, Params() %d", len(ParamNames()), len(cfg.Params()))
	}
}
