package identity

import (
	"testing"

	"github.com/privarion/privarion/internal/backend"
)

func TestGenerateMAC_RandomSatisfiesBitConstraints(t *testing.T) {
	e := NewEngine(backend.NewFakeCommandExecutor())
	mac, err := e.GenerateMAC(Strategy{Kind: StrategyRandom})
	if err != nil {
		t.Fatalf("GenerateMAC: %v", err)
	}
	if !ValidateMAC(mac) {
		t.Fatalf("generated MAC %q failed validation", mac)
	}
}

func TestGenerateMAC_VendorBasedUsesOUI(t *testing.T) {
	e := NewEngine(backend.NewFakeCommandExecutor())
	mac, err := e.GenerateMAC(Strategy{Kind: StrategyVendorBased, Vendor: "apple"})
	if err != nil {
		t.Fatalf("GenerateMAC: %v", err)
	}
	if mac[:8] != "00:1B:63" {
		t.Fatalf("expected apple OUI prefix, got %s", mac)
	}
}

func TestGenerateMAC_CustomFallsBackOnInvalidPattern(t *testing.T) {
	e := NewEngine(backend.NewFakeCommandExecutor())
	mac, err := e.GenerateMAC(Strategy{Kind: StrategyCustom, Custom: "ZZ:ZZ"})
	if err != nil {
		t.Fatalf("GenerateMAC: %v", err)
	}
	if !ValidateMAC(mac) {
		t.Fatalf("fallback MAC %q failed validation", mac)
	}
}

func TestGenerateHostname_MatchesValidator(t *testing.T) {
	e := NewEngine(backend.NewFakeCommandExecutor())
	for i := 0; i < 20; i++ {
		h, err := e.GenerateHostname(Strategy{Kind: StrategyRealistic})
		if err != nil {
			t.Fatalf("GenerateHostname: %v", err)
		}
		if !ValidateHostname(h) {
			t.Fatalf("generated hostname %q failed validation", h)
		}
	}
}

func TestValidateMAC_RejectsMalformed(t *testing.T) {
	if ValidateMAC("not-a-mac") {
		t.Fatalf("expected malformed MAC to be rejected")
	}
}
