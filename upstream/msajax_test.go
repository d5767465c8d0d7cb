package upstream

import (
	"fmt"
	"testing"
)

func TestParseMSAjaxMs(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"/Date(1700000000000)/", 1700000000000},
		{"/Date(1700000000000+0000)/", 1700000000000},
		{"/Date(1700000000000-0500)/", 1700000000000 - 5*60*60000},
		{"/Date(1700000000000+0530)/", 1700000000000 + (5*60+30)*60000},
		{"/Date(0-1400)/", 0 - 14*60*60000},
	}
	for _, c := range cases {
		got, err := ParseMSAjaxMs(c.in)
		if err != nil {
			t.Errorf("ParseMSAjaxMs(%q) error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseMSAjaxMs(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseMSAjaxMsProperty(t *testing.T) {
	// Sampled across the legal offset range 00 <= HH <= 14.
	for hh := 0; hh <= 14; hh++ {
		for _, mm := range []int{0, 15, 30, 45} {
			for _, sign := range []string{"+", "-"} {
				ms := int64(1650000000000)
				offset := fmt.Sprintf("%s%02d%02d", sign, hh, mm)
				in := fmt.Sprintf("/Date(%d%s)/", ms, offset)
				got, err := ParseMSAjaxMs(in)
				if err != nil {
					t.Fatalf("ParseMSAjaxMs(%q) error: %v", in, err)
				}
				signMul := int64(1)
				if sign == "-" {
					signMul = -1
				}
				want := ms + signMul*(int64(hh)*60+int64(mm))*60000
				if got != want {
					t.Errorf("ParseMSAjaxMs(%q) = %d, want %d", in, got, want)
				}
			}
		}
	}
}

func TestParseMSAjaxMsMissingOffset(t *testing.T) {
	got, err := ParseMSAjaxMs("/Date(12345)/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 12345 {
		t.Errorf("got %d, want 12345", got)
	}
}

func TestParseMSAjaxMsMalformed(t *testing.T) {
	if _, err := ParseMSAjaxMs("not-a-date"); err == nil {
		t.Error("expected error for malformed input")
	}
}
