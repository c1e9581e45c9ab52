package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun_Version(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"substrated", "version"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("unexpected version output %q", out.String())
	}
}

func TestRun_Help(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Run([]string{"substrated", "help"}, &out, &errOut); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out.String(), "serve") {
		t.Errorf("usage should mention serve, got %q", out.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Run([]string{"substrated", "frobnicate"}, &out, &errOut); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "Unknown command") {
		t.Errorf("expected unknown-command message, got %q", errOut.String())
	}
}
