package origin

import "testing"

func TestOrigin(t *testing.T) {
	tests := []struct {
		name       string
		o          Origin
		wantNone   bool
		wantSigner string
		wantOK     bool
	}{
		{"zero value", Origin{}, true, "", false},
		{"none", None(), true, "", false},
		{"signed", Signed("alice"), false, "alice", true},
		{"signed blank", Signed(""), false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.o.IsNone(); got != tt.wantNone {
				t.Errorf("IsNone = %v, want %v", got, tt.wantNone)
			}
			signer, ok := tt.o.Signer()
			if ok != tt.wantOK || string(signer) != tt.wantSigner {
				t.Errorf("Signer = (%q, %v), want (%q, %v)", signer, ok, tt.wantSigner, tt.wantOK)
			}
		})
	}
}

func TestOriginString(t *testing.T) {
	if got := Signed("bob").String(); got != "signed(bob)" {
		t.Errorf("got %q", got)
	}
	if got := None().String(); got != "none" {
		t.Errorf("got %q", got)
	}
}
