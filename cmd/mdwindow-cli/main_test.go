package main

import "testing"

func TestHalfCap(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"minute", false, false},
		{"Minute-Half", true, false},
		{"tick", false, true},
		{"hour", false, true},
	}
	for _, tt := range tests {
		got, err := halfCap(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("halfCap(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("halfCap(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
