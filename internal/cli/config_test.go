package cli

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestSetConfigValue(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		want    any
		wantErr bool
	}{
		{ConfigKeyServerURL, "https://desk.example.com/", "https://desk.example.com", false},
		{ConfigKeyServerURL, "desk.example.com", nil, true},
		{PrefItemsPerPage, "50", 50, false},
		{PrefItemsPerPage, "0", nil, true},
		{PrefItemsPerPage, "many", nil, true},
		{PrefDefaultDateRange, "90", 90, false},
		{PrefTheme, "dark", "dark", false},
		{PrefTheme, "neon", nil, true},
		{PrefVisibleColumns + ".vms", "NAME,STATUS", "NAME,STATUS", false},
		{ConfigKeyToken, "abc", nil, true},
		{"unknown", "x", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()

			err := setConfigValue(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s=%s", tt.key, tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := viper.Get(tt.key); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestVisibleColumns(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  []string
	}{
		{"unset", nil, nil},
		{"comma string", "name, status ,", []string{"NAME", "STATUS"}},
		{"yaml list", []any{"name", "ram"}, []string{"NAME", "RAM"}},
		{"string slice", []string{"cpu"}, []string{"CPU"}},
		{"blank", " , ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			if tt.value != nil {
				viper.Set(PrefVisibleColumns+".vms", tt.value)
			}
			if got := visibleColumns("vms"); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestConfigCommands(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "", "config", "set", "preferences.items_per_page", "40")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "preferences.items_per_page updated.") {
		t.Errorf("unexpected output %q", out)
	}

	out, err = env.run(t, "", "config", "get", "preferences.items_per_page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "40" {
		t.Errorf("expected 40, got %q", out)
	}

	out, err = env.run(t, "", "config", "view")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "test-token") || strings.Contains(out, "test-refresh") {
		t.Errorf("tokens must be redacted:\n%s", out)
	}
	for _, want := range []string{"token: REDACTED", "items_per_page: 40", "server_url: " + env.server.URL} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}

	if _, err := env.run(t, "", "config", "set", "preferences.theme", "neon"); err == nil {
		t.Error("expected error for unknown theme")
	}
}

func TestTableWrite(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	tbl := newTable("vms", "ID", "NAME")
	tbl.add("vm-1", "web-1")
	tbl.add("vm-2", "db-1")

	var buf bytes.Buffer
	if err := tbl.write(&buf); err != nil {
		t.Fatal(err)
	}
	want := "ID    NAME\nvm-1  web-1\nvm-2  db-1\n"
	if buf.String() != want {
		t.Errorf("expected:\n%q\ngot:\n%q", want, buf.String())
	}

	buf.Reset()
	if err := newTable("gp_accounts", "ID").write(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "No gp accounts found.\n" {
		t.Errorf("unexpected empty message %q", buf.String())
	}
}

func TestTableWrite_UnknownColumnsShowAll(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set(PrefVisibleColumns+".vms", "bogus")

	tbl := newTable("vms", "ID", "NAME")
	tbl.add("vm-1", "web-1")
	if got := tbl.columns(); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("expected all columns, got %v", got)
	}
}

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{gb(0), "0"},
		{gb(64), "64GiB"},
		{gb(1536), "1.5TiB"},
		{gb(0.5), "512MiB"},
		{ghz(2.4), "2.4 GHz"},
		{orDash(""), "-"},
		{orDash("x"), "x"},
		{breakdown(map[string]int{"b": 1, "a": 2}), " (a 2, b 1)"},
		{breakdown(nil), ""},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, tt.got)
		}
	}
}
