package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "short flag with separate value",
			args:         []string{"-c", "wallet.yaml", "-a", ":50051"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c", "wallet.yaml"},
		},
		{
			name:         "long flag with equals",
			args:         []string{"--config=alt.toml", "-a", ":50051"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"--config=alt.toml"},
		},
		{
			name:         "both short and long present, preserve order",
			args:         []string{"--config=first.json", "-c", "second.json", "-x", "1"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"--config=first.json", "-c", "second.json"},
		},
		{
			name:         "unknown flags ignored",
			args:         []string{"-x", "1", "--y=2", "positional"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{},
		},
		{
			name:         "flag without value at end is kept as-is",
			args:         []string{"-c"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c"},
		},
		{
			name:         "flag followed by another flag (no value)",
			args:         []string{"-c", "-notvalue"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c"},
		},
		{
			name:         "value that looks like a flag but with equals form",
			args:         []string{"--config=--weird.json"},
			allowedFlags: []string{"--config"},
			want:         []string{"--config=--weird.json"},
		},
		{
			name:         "multiple allowed flags kept",
			args:         []string{"-a", ":9090", "-c", "wallet.yaml", "--other", "x"},
			allowedFlags: []string{"-c", "-a"},
			want:         []string{"-a", ":9090", "-c", "wallet.yaml"},
		},
		{
			name:         "empty args",
			args:         []string{},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{},
		},
		{
			name:         "path with spaces remains single arg",
			args:         []string{"-c", "/etc/happypaisa/wallet.yaml"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c", "/etc/happypaisa/wallet.yaml"},
		},
		{
			name:         "do not treat next dash-starting token as value",
			args:         []string{"-c", "--config=alt.toml"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c", "--config=alt.toml"},
		},
		{
			name:         "one or two dashes match the same flag",
			args:         []string{"--c", "a.json", "-config", "b.json"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"--c", "a.json", "-config", "b.json"},
		},
		{
			name:         "stops at terminator",
			args:         []string{"-c", "a.json", "--", "-c", "b.json"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c", "a.json"},
		},
		{
			name:         "lone dash is a value",
			args:         []string{"-c", "-"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c", "-"},
		},
		{
			name:         "repeated allowed flag is preserved in order",
			args:         []string{"-c", "one.json", "-c", "two.json"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c", "one.json", "-c", "two.json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowedFlags))
		})
	}
}

func TestConfigFileFlag(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "short -c with value", args: []string{"-c", "/path/short.yaml"}, want: "/path/short.yaml"},
		{name: "long -config with value", args: []string{"-config", "/path/long.json"}, want: "/path/long.json"},
		{name: "equals form", args: []string{"-config=/etc/hp.toml", "-g", ":9000"}, want: "/etc/hp.toml"},
		{name: "unknown flags are ignored", args: []string{"-x", "1", "-y", "2"}, want: ""},
		{name: "double dash", args: []string{"--config", "/path/dd.yaml"}, want: "/path/dd.yaml"},
		{name: "after terminator ignored", args: []string{"--", "-c", "/path/x.json"}, want: ""},
		{name: "multiple flags, last wins", args: []string{"-c", "/path/1.json", "-config", "/path/2.json"}, want: "/path/2.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigFileFlag(tt.args))
		})
	}
}
