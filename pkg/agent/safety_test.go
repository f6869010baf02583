package agent

import (
	"strings"
	"testing"
)

func TestValidateChangeSet(t *testing.T) {
	tests := []struct {
		name     string
		changes  []FileEdit
		wantErr  bool
		wantPath string
	}{
		{
			name: "normal edits pass",
			changes: []FileEdit{
				{Path: "index.html", Content: "<html>hello world</html>"},
				{Path: "style.css", Content: "body { margin: 0; }"},
			},
		},
		{
			name: "critical file with real content passes",
			changes: []FileEdit{
				{Path: "package.json", Content: `{"name": "site", "version": "1.0.0"}`},
			},
		},
		{
			name: "emptied package.json rejected",
			changes: []FileEdit{
				{Path: "package.json", Content: ""},
			},
			wantErr:  true,
			wantPath: "package.json",
		},
		{
			name: "whitespace-only go.mod rejected",
			changes: []FileEdit{
				{Path: "go.mod", Content: "   \n\t  "},
			},
			wantErr:  true,
			wantPath: "go.mod",
		},
		{
			name: "one bad edit rejects the set",
			changes: []FileEdit{
				{Path: "style.css", Content: "body { margin: 0; }"},
				{Path: "index.html", Content: "x"},
			},
			wantErr:  true,
			wantPath: "index.html",
		},
		{
			name: "non-critical file may be emptied",
			changes: []FileEdit{
				{Path: "notes.md", Content: ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateChangeSet(&ChangeSet{Changes: tt.changes})

			if !tt.wantErr {
				if err != nil {
					t.Errorf("validateChangeSet() error = %v, want nil", err)
				}
				return
			}

			if err == nil {
				t.Fatal("validateChangeSet() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantPath) {
				t.Errorf("error %q does not name %s", err, tt.wantPath)
			}
		})
	}
}
