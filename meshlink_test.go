package meshlink

import (
	"testing"

	"github.com/bft-labs/meshlink/internal/domain"
)

func TestEncodeDecode(t *testing.T) {
	in := Package{
		Dest:      2,
		From:      1,
		Type:      domain.TypeSingle,
		PackageID: 99,
		Timestamp: 1234,
		Payload:   "hello",
	}

	wire, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out != in {
		t.Errorf("Decode(Encode(p)) = %+v, want %+v", out, in)
	}
	if !out.Last() {
		t.Error("single slice package should be last")
	}
}

func TestLastSliceIndex(t *testing.T) {
	tests := []struct {
		length, size, want int
	}{
		{0, 1000, 0},
		{999, 1000, 0},
		{1000, 1000, 0},
		{1001, 1000, 1},
		{2500, 1000, 2},
	}
	for _, tt := range tests {
		if got := LastSliceIndex(tt.length, tt.size); got != tt.want {
			t.Errorf("LastSliceIndex(%d, %d) = %d, want %d", tt.length, tt.size, got, tt.want)
		}
	}
}
