package cli

import (
	"testing"
)

func TestBuildConfig_RequiresAtLeastOneSeedURL(t *testing.T) {
	ResetFlags()
	defer ResetFlags()

	_, err := buildConfig()
	if err == nil {
		t.Fatal("expected an error when no --seed-url is set")
	}
}

func TestBuildConfig_AppliesSeedURLsAndOverrides(t *testing.T) {
	ResetFlags()
	defer ResetFlags()

	SetSeedURLsForTest([]string{"https://example.com/"})
	maxDepth = 7
	concurrency = 4

	cfg, err := buildConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxDepth() != 7 {
		t.Errorf("MaxDepth: got %d, want 7", cfg.MaxDepth())
	}
	if cfg.Concurrency() != 4 {
		t.Errorf("Concurrency: got %d, want 4", cfg.Concurrency())
	}
	if len(cfg.SeedURLs()) != 1 {
		t.Errorf("expected 1 seed URL, got %d", len(cfg.SeedURLs()))
	}
}

func TestBuildConfig_RejectsUnparsableSeedURL(t *testing.T) {
	ResetFlags()
	defer ResetFlags()

	SetSeedURLsForTest([]string{"://not-a-url"})
	if _, err := buildConfig(); err == nil {
		t.Fatal("expected an error for an unparsable seed URL")
	}
}
