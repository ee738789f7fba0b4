package cmd

import (
	"testing"
)

func TestBuildAuditConfigDefaultsToAllLocal(t *testing.T) {
	cfg := buildAuditConfig(auditFlags{staleHigh: 12, staleMedium: 6, staleLow: 3, churnMin: 10})

	if cfg.Stale == nil || cfg.Stale.HighMonths != 12 {
		t.Errorf("stale config = %+v", cfg.Stale)
	}
	if !cfg.Orphans || !cfg.BrokenLinks || !cfg.Contributors || !cfg.ExternalLinks {
		t.Errorf("local checks not all enabled: %+v", cfg)
	}
	if cfg.ValidateExternal || cfg.Unsynced {
		t.Error("network checks enabled without opt-in")
	}
}

func TestBuildAuditConfigExplicitSelection(t *testing.T) {
	cfg := buildAuditConfig(auditFlags{brokenLinks: true, staleHigh: 12, staleMedium: 6, staleLow: 3})

	if !cfg.BrokenLinks {
		t.Error("broken-links not enabled")
	}
	if cfg.Stale != nil || cfg.Orphans || cfg.Contributors || cfg.ExternalLinks || cfg.HighChurnMin != 0 {
		t.Errorf("unselected checks enabled: %+v", cfg)
	}
}

func TestBuildAuditConfigValidateImpliesExternal(t *testing.T) {
	cfg := buildAuditConfig(auditFlags{orphans: true, validate: true})

	if !cfg.ExternalLinks || !cfg.ValidateExternal {
		t.Errorf("validate did not enable external links: %+v", cfg)
	}
}
