package cmd

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAmountFlag(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "92", want: "92"},
		{in: "0.00000001", want: "0.00000001"},
		{in: "-5", want: "-5"}, // the engine rejects it, and audits it
		{in: "1e3", want: "1000"},
		{in: "123456789012345678901234567890", want: "123456789012345678901234567890"},
		{in: "1234567890123456789012345678901", wantErr: true},
		{in: "1e1000000000", wantErr: true},
		{in: "1e-1000000000", wantErr: true},
		{in: "0.0000000000000000001", wantErr: true},
		{in: "lots", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var a amountFlag
			err := a.Set(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				if a.set {
					t.Errorf("Set(%q) failed but marked the flag set", tt.in)
				}
				return
			}
			if !a.value.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Set(%q) = %s, want %s", tt.in, a.value, tt.want)
			}
		})
	}
}
