package cli

import (
	"bytes"
	"strings"
	"testing"
)

func newTestOutput(jsonMode bool) (*Output, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	o := NewOutput(jsonMode)
	o.w = &out
	o.errW = &errOut
	return o, &out, &errOut
}

func TestTableRendersRows(t *testing.T) {
	o, out, _ := newTestOutput(false)

	o.Table([]string{"NAME", "POLLING"}, [][]string{{"ping", "true"}})

	got := out.String()
	if !strings.Contains(got, "NAME") || !strings.Contains(got, "ping") {
		t.Errorf("table output missing data:\n%s", got)
	}
}

func TestTableEmptyPrintsMessage(t *testing.T) {
	o, out, errOut := newTestOutput(false)

	o.Table([]string{"NAME", "POLLING"}, nil)

	if out.Len() != 0 {
		t.Errorf("empty table must not render headers: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "No results") {
		t.Errorf("stderr = %q, want empty-list message", errOut.String())
	}
}

func TestPrintJSONModeKeepsEmptyList(t *testing.T) {
	o, out, errOut := newTestOutput(true)

	o.Print([]string{"NAME"}, nil, []string{})

	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("json output = %q, want []", out.String())
	}
	if errOut.Len() != 0 {
		t.Errorf("json mode must not write to stderr: %q", errOut.String())
	}
}
