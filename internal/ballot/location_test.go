package ballot

import (
	"encoding/json"
	"testing"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    *Location
		wantErr bool
	}{
		{
			name: "canonical shape",
			raw:  `{"latitude": 51.5, "longitude": -0.12}`,
			want: &Location{Latitude: 51.5, Longitude: -0.12},
		},
		{
			name: "legacy underscore shape",
			raw:  `{"_lat": 51.5, "_long": -0.12}`,
			want: &Location{Latitude: 51.5, Longitude: -0.12},
		},
		{
			name: "canonical shape wins when both present",
			raw:  `{"latitude": 1, "longitude": 2, "_lat": 3, "_long": 4}`,
			want: &Location{Latitude: 1, Longitude: 2},
		},
		{
			name: "absent document",
			raw:  "",
			want: nil,
		},
		{
			name: "explicit null",
			raw:  "null",
			want: nil,
		},
		{
			name:    "partial canonical shape",
			raw:     `{"latitude": 51.5}`,
			wantErr: true,
		},
		{
			name:    "mixed halves of each shape",
			raw:     `{"latitude": 51.5, "_long": -0.12}`,
			wantErr: true,
		},
		{
			name:    "latitude out of range",
			raw:     `{"latitude": 91, "longitude": 0}`,
			wantErr: true,
		},
		{
			name:    "longitude out of range",
			raw:     `{"latitude": 0, "longitude": -181}`,
			wantErr: true,
		},
		{
			name:    "not an object",
			raw:     `"51.5,-0.12"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocation(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLocation(%s) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("ParseLocation(%s) = %v, want %v", tt.raw, got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("ParseLocation(%s) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}
