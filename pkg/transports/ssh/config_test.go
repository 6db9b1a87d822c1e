package ssh

import (
	"testing"

	"github.com/opsailor/opsail/pkg/inventory"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid",
			config: Config{Host: "web1.example.com", Port: 22, User: "deploy"},
		},
		{
			name:    "missing host",
			config:  Config{Port: 22, User: "deploy"},
			wantErr: true,
		},
		{
			name:    "missing user",
			config:  Config{Host: "web1", Port: 22},
			wantErr: true,
		},
		{
			name:    "port out of range",
			config:  Config{Host: "web1", Port: 70000, User: "deploy"},
			wantErr: true,
		},
		{
			name:    "zero port",
			config:  Config{Host: "web1", User: "deploy"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigAddress(t *testing.T) {
	c := Config{Host: "db1", Port: 2222, User: "root"}
	if got := c.Address(); got != "db1:2222" {
		t.Errorf("Address() = %q, want %q", got, "db1:2222")
	}
}

func TestConfigFromHost(t *testing.T) {
	h := inventory.NewHost("web1")
	h.SetVariable("ansible_host", "10.0.0.5")
	h.SetVariable("ansible_port", "2022")
	h.SetVariable("ansible_user", "deploy")
	h.SetVariable("ansible_password", "secret")
	h.SetVariable("ansible_sudo_pass", "sudosecret")
	h.SetVariable("ansible_ssh_private_key_file", "/home/deploy/.ssh/deploy_key")

	cfg := ConfigFromHost(h)
	if cfg.Host != "10.0.0.5" {
		t.Errorf("Host = %q, want 10.0.0.5", cfg.Host)
	}
	if cfg.Port != 2022 {
		t.Errorf("Port = %d, want 2022", cfg.Port)
	}
	if cfg.User != "deploy" {
		t.Errorf("User = %q, want deploy", cfg.User)
	}
	if cfg.Password != "secret" {
		t.Errorf("Password = %q, want secret", cfg.Password)
	}
	if cfg.SudoPassword != "sudosecret" {
		t.Errorf("SudoPassword = %q, want sudosecret", cfg.SudoPassword)
	}
	if cfg.PrivateKeyPath != "/home/deploy/.ssh/deploy_key" {
		t.Errorf("PrivateKeyPath = %q", cfg.PrivateKeyPath)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", cfg.ConnectTimeout, DefaultConnectTimeout)
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"simple", "'simple'"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
