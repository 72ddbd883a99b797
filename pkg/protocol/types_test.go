package protocol

import (
	"strings"
	"testing"
)

func TestShardIndexInfo(t *testing.T) {
	si := ShardIndex{
		ShardID:         3,
		Revision:        7,
		IndexGeneration: 2,
		Symbols:         []Symbol{{Name: "Foo", Path: "a/Foo.java"}, {Name: "Bar", Path: "a/Bar.java"}},
	}

	info := si.Info()
	if info.ShardID != 3 || info.Revision != 7 || info.IndexGeneration != 2 {
		t.Errorf("info identity fields = %+v", info)
	}
	if info.SymbolCount != 2 {
		t.Errorf("SymbolCount = %d, want 2", info.SymbolCount)
	}
}

func TestValidateFiles(t *testing.T) {
	tests := []struct {
		name    string
		files   []FileText
		wantErr string
	}{
		{"ok", []FileText{{Path: "a.java", Text: "class A {}"}}, ""},
		{
			"oversized text",
			[]FileText{{Path: "a.java", Text: strings.Repeat("x", MaxFileTextBytes+1)}},
			"file text",
		},
		{
			"oversized path",
			[]FileText{{Path: strings.Repeat("p", MaxSmallStringBytes+1), Text: ""}},
			"file path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFiles(tt.files)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateFiles: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateShardIndexTooManySymbols(t *testing.T) {
	si := &ShardIndex{Symbols: make([]Symbol, MaxSymbolsPerShardIndex+1)}
	if err := ValidateShardIndex(si); err == nil {
		t.Error("want error for oversized shard index")
	}
	si.Symbols = si.Symbols[:MaxSymbolsPerShardIndex]
	if err := ValidateShardIndex(si); err != nil {
		t.Errorf("at-limit index rejected: %v", err)
	}
}
