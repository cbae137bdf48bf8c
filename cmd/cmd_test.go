// cmd_test.go - Tests fuer das CLI
package cmd

import (
	"bytes"
	"testing"
)

func TestRootShowsUsageWithoutArgs(t *testing.T) {
	cli := NewCLI()

	var out bytes.Buffer
	cli.SetOut(&out)
	cli.SetArgs([]string{})

	if err := cli.Execute(); err != nil {
		t.Fatal(err)
	}
	if out.Len() == 0 {
		t.Error("erwartet Usage-Ausgabe ohne Argumente")
	}
}

func TestCommentIndex(t *testing.T) {
	cases := map[string]int{"Paddy": 0, "Brown": 1, "White": 2}
	for name, want := range cases {
		got, err := commentIndex(name)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("commentIndex(%q) = %d, erwartet %d", name, got, want)
		}
	}

	if _, err := commentIndex("Basmati"); err == nil {
		t.Error("erwartet Fehler fuer unbekannte Reissorte")
	}
}

func TestConvertRejectsConflictingFlags(t *testing.T) {
	cli := NewCLI()
	cli.SetOut(&bytes.Buffer{})
	cli.SetErr(&bytes.Buffer{})
	cli.SetArgs([]string{"convert", "--checkpoint", "rice_model1.ckpt", "--all"})

	if err := cli.Execute(); err == nil {
		t.Error("erwartet Fehler bei --checkpoint zusammen mit --all")
	}
}

func TestConvertOptionsFlagDefaults(t *testing.T) {
	cmd := newConvertCmd()
	opts, err := convertOptions(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if opts.MobileSize != 384 {
		t.Errorf("MobileSize = %d, erwartet 384", opts.MobileSize)
	}
	if opts.MobileType != "F16" {
		t.Errorf("MobileType = %q, erwartet F16", opts.MobileType)
	}
}
