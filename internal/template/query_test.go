package template

import (
	"testing"

	"pgbench/internal/data"
)

func TestQuery_StaticText(t *testing.T) {
	q := NewQuery("SELECT 1", "run", nil)
	got, err := q.Render(1, 0)
	if err != nil || got != "SELECT 1" {
		t.Errorf("Render() = %q, %v", got, err)
	}
	if q.Text() != "SELECT 1" {
		t.Errorf("Text() = %q", q.Text())
	}
}

func TestQuery_BuiltinVariables(t *testing.T) {
	q := NewQuery("/* ${run} w${worker} i${iteration} */ SELECT 1", "abc", nil)
	got, err := q.Render(3, 7)
	if err != nil {
		t.Fatal(err)
	}
	if got != "/* abc w3 i7 */ SELECT 1" {
		t.Errorf("Render() = %q", got)
	}
}

func TestQuery_DataRows(t *testing.T) {
	src := data.NewSource([]map[string]any{{"aid": "1"}, {"aid": "2"}}, data.ModeSequential)
	q := NewQuery("SELECT * FROM accounts WHERE aid = ${data.aid}", "run", src)

	for _, want := range []string{"1", "2", "1"} {
		got, err := q.Render(1, 0)
		if err != nil {
			t.Fatal(err)
		}
		if got != "SELECT * FROM accounts WHERE aid = "+want {
			t.Errorf("Render() = %q, want aid %s", got, want)
		}
	}
}

func TestQuery_MissingData(t *testing.T) {
	q := NewQuery("SELECT ${data.aid}", "run", nil)
	if _, err := q.Render(1, 0); err == nil {
		t.Error("expected error when no data source is configured")
	}
}

func TestQuery_CheckDoesNotConsumeRows(t *testing.T) {
	src := data.NewSource([]map[string]any{{"aid": "1"}, {"aid": "2"}}, data.ModeSequential)
	q := NewQuery("SELECT ${data.aid}", "run", src)

	if err := q.Check(); err != nil {
		t.Fatalf("Check() = %v", err)
	}
	got, _ := q.Render(1, 0)
	if got != "SELECT 1" {
		t.Errorf("first render after Check = %q, want SELECT 1", got)
	}
}

func TestQuery_CheckReportsMissing(t *testing.T) {
	src := data.NewSource([]map[string]any{{"aid": "1"}}, data.ModeSequential)
	q := NewQuery("SELECT ${data.bid}", "run", src)
	if err := q.Check(); err == nil {
		t.Error("expected error for unknown column")
	}
	if err := NewQuery("SELECT 1", "run", nil).Check(); err != nil {
		t.Errorf("static query Check() = %v", err)
	}
}

func TestQuery_QuotedDataValues(t *testing.T) {
	src := data.NewSource([]map[string]any{{"name": "O'Brien"}, {"name": nil}}, data.ModeSequential)
	q := NewQuery("SELECT * FROM users WHERE name = ${quote(data.name)}", "run", src)

	for _, want := range []string{"'O''Brien'", "NULL"} {
		got, err := q.Render(1, 0)
		if err != nil {
			t.Fatal(err)
		}
		if got != "SELECT * FROM users WHERE name = "+want {
			t.Errorf("Render() = %q, want name %s", got, want)
		}
	}
}
