package deploy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.yaml")
	doc := `name: token-vault
bytecode: "6080604052` + patchSentinel + `f3"
sentinel: "` + patchSentinel + `"
abi:
  - type: constructor
  - name: sweep
    type: function
    stateMutability: nonpayable
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}

	tmpl, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tmpl.Name != "token-vault" {
		t.Fatalf("name not parsed: %s", tmpl.Name)
	}
	if tmpl.Sentinel != patchSentinel {
		t.Fatalf("sentinel not parsed: %s", tmpl.Sentinel)
	}
	if got := tmpl.ABI.FunctionCount(); got != 1 {
		t.Fatalf("expected 1 function, got %d", got)
	}
}

func TestLoadTemplateRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "nope.yaml")
	if _, err := LoadTemplate(missing); err == nil {
		t.Fatalf("missing file should error")
	}

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("name: x\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTemplate(empty); err == nil {
		t.Fatalf("template without bytecode should error")
	}

	garbled := filepath.Join(dir, "garbled.yaml")
	if err := os.WriteFile(garbled, []byte("{не yaml"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTemplate(garbled); err == nil {
		t.Fatalf("malformed yaml should error")
	}
}

func TestTemplateValidate(t *testing.T) {
	good := Template{Bytecode: "6080", Sentinel: patchSentinel}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}
	if err := (Template{Sentinel: patchSentinel}).Validate(); err == nil {
		t.Fatalf("empty bytecode should error")
	}
	if err := (Template{Bytecode: "6080"}).Validate(); err == nil {
		t.Fatalf("empty sentinel should error")
	}
	if err := (Template{Bytecode: "6080", Sentinel: "abcd"}).Validate(); err == nil {
		t.Fatalf("short sentinel should error")
	}
}
