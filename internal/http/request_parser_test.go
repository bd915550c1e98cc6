package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestParseRangeParams(t *testing.T) {
	tests := []struct {
		name      string
		query     url.Values
		wantStart string
		wantEnd   string
	}{
		{"both", url.Values{"start": {"2025-01-01"}, "end": {"2025-01-31"}}, "2025-01-01", "2025-01-31"},
		{"start only", url.Values{"start": {" 2025-01-01 "}}, "2025-01-01", ""},
		{"control characters stripped", url.Values{"start": {"2025-01-01\x00"}}, "2025-01-01", ""},
		{"empty", url.Values{}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRangeParams(tt.query)
			if got.Start != tt.wantStart || got.End != tt.wantEnd {
				t.Errorf("ParseRangeParams() = %+v, want start=%q end=%q", got, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestRequestBodyParser(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantJSON    bool
		wantStart   string
		wantAnchor  *string
		wantErr     bool
	}{
		{
			name:        "json with anchor",
			body:        `{"start":"2025-01-01","end":"2025-01-02","anchor_opening":1000.5}`,
			contentType: "application/json",
			wantJSON:    true,
			wantStart:   "2025-01-01",
			wantAnchor:  strPtr("1000.5"),
		},
		{
			name:        "json null anchor",
			body:        `{"start":"2025-01-01","anchor_opening":null}`,
			contentType: "application/json",
			wantJSON:    true,
			wantStart:   "2025-01-01",
		},
		{
			name:        "form",
			body:        "start=2025-01-01&anchor_opening=1.000%2C50",
			contentType: "application/x-www-form-urlencoded",
			wantStart:   "2025-01-01",
			wantAnchor:  strPtr("1.000,50"),
		},
		{
			name:      "empty body",
			body:      "",
			wantStart: "",
		},
		{
			name:        "broken json",
			body:        `{"start":`,
			contentType: "application/json",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/recalculate", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			p := NewRequestBodyParser(httptest.NewRecorder(), req)

			err := p.Parse()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if p.IsJSON() != tt.wantJSON {
				t.Errorf("IsJSON() = %v, want %v", p.IsJSON(), tt.wantJSON)
			}
			if got := p.Range().Start; got != tt.wantStart {
				t.Errorf("start = %q, want %q", got, tt.wantStart)
			}
			got := p.GetOptional("anchor_opening")
			switch {
			case tt.wantAnchor == nil && got != nil:
				t.Errorf("anchor = %q, want nil", *got)
			case tt.wantAnchor != nil && (got == nil || *got != *tt.wantAnchor):
				t.Errorf("anchor = %v, want %q", got, *tt.wantAnchor)
			}
		})
	}
}

func TestDecodeImportRows(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"bare array", `[{"date":"2025-01-01","opening":"0","closing":"10"}]`, 1, false},
		{"wrapped", `{"rows":[{"date":"01/01/2025","opening":0,"closing":10},{"date":"2025-01-02","opening":"10","closing":"1.234,56"}]}`, 2, false},
		{"empty", ``, 0, true},
		{"no rows", `{"rows":[]}`, 0, true},
		{"garbage", `[{"date":`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(tt.body))
			rows, err := DecodeImportRows(httptest.NewRecorder(), req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeImportRows() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(rows) != tt.want {
				t.Errorf("rows = %d, want %d", len(rows), tt.want)
			}
		})
	}
}

func strPtr(s string) *string { return &s }
