package types

import (
	"testing"
	"time"
)

func TestHourBucket(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "mid hour",
			in:   time.Date(2024, 3, 5, 14, 37, 12, 999, time.UTC),
			want: time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "top of hour is unchanged",
			in:   time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "non-UTC input is converted",
			in:   time.Date(2024, 3, 5, 1, 30, 0, 0, loc),
			want: time.Date(2024, 3, 4, 23, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HourBucket(tt.in)
			if !got.Equal(tt.want) {
				t.Errorf("HourBucket(%v) = %v, want %v", tt.in, got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("HourBucket location = %v, want UTC", got.Location())
			}
		})
	}
}

func TestParseThresholdBasis(t *testing.T) {
	tests := []struct {
		in     string
		want   ThresholdBasis
		wantOK bool
	}{
		{"usd", BasisUSD, true},
		{" ADA ", BasisADA, true},
		{"btc", BasisBTC, true},
		{"holdings", BasisHoldings, true},
		{"eur", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseThresholdBasis(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseThresholdBasis(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
