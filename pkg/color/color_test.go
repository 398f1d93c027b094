package color_test

import (
	"testing"

	"vasm/pkg/color"
)

func TestFaultBanner(t *testing.T) {
	defer color.EnableColor(color.IsColorEnabled())

	color.EnableColor(false)
	if got := color.Fault("boom"); got != "Fault: boom" {
		t.Errorf("expected a plain banner, got %q", got)
	}

	color.EnableColor(true)
	want := color.BrightRed + color.Bold + "Fault: " + color.Reset + color.Reset + "boom"
	if got := color.Fault("boom"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
