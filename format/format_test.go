package format

import (
	"testing"
	"time"
)

func TestHumanNumber(t *testing.T) {
	cases := map[uint64]string{
		0:          "0",
		999:        "999",
		1000:       "1K",
		1_000_000:  "1M",
		7_300_000:  "7.3M",
		2_000_000_000: "2B",
		6_700_000_000: "6.7B",
	}

	for in, want := range cases {
		if got := HumanNumber(in); got != want {
			t.Errorf("HumanNumber(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestHumanBytes(t *testing.T) {
	cases := map[int64]string{
		42:             "42 B",
		1500:           "1.5 KB",
		3_500_000:      "3.5 MB",
		12_000_000_000: "12.0 GB",
	}

	for in, want := range cases {
		if got := HumanBytes(in); got != want {
			t.Errorf("HumanBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestHumanDuration(t *testing.T) {
	cases := map[time.Duration]string{
		90 * time.Second:        "1m30s",
		1500 * time.Millisecond: "1.5s",
		250 * time.Microsecond:  "250µs",
	}

	for in, want := range cases {
		if got := HumanDuration(in); got != want {
			t.Errorf("HumanDuration(%v) = %q, want %q", in, got, want)
		}
	}
}
