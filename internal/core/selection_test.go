package core

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Selection
		wantErr bool
	}{
		{
			name: "array of names",
			raw:  `["Name","Phone 1 - Value"]`,
			want: Selection{"Name", "Phone 1 - Value"},
		},
		{
			name: "empty array is allowed",
			raw:  `[]`,
			want: Selection{},
		},
		{
			name: "unknown names are kept",
			raw:  `[" City ","does-not-exist"]`,
			want: Selection{" City ", "does-not-exist"},
		},
		{
			name:    "blank value",
			raw:     "  ",
			wantErr: true,
		},
		{
			name:    "null",
			raw:     "null",
			wantErr: true,
		},
		{
			name:    "object instead of array",
			raw:     `{"fields":["Name"]}`,
			wantErr: true,
		},
		{
			name:    "non string element",
			raw:     `["Name", 3]`,
			wantErr: true,
		},
		{
			name:    "truncated json",
			raw:     `["Name"`,
			wantErr: true,
		},
		{
			name:    "comma separated text",
			raw:     "Name,City",
			wantErr: true,
		},
		{
			name:    "oversized column name",
			raw:     `["` + strings.Repeat("x", 2000) + `"]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSelection(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSelection) {
					t.Fatalf("ParseSelection(%q) error = %v, want ErrInvalidSelection", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSelection(%q) error = %v", tt.raw, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseSelection(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}
