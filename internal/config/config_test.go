package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestViperConfigGetString(t *testing.T) {
	v := viper.New()
	v.Set("name", "test")
	cfg := New(v)

	if got := cfg.GetString("name"); got != "test" {
		t.Errorf("GetString('name') = %q, want %q", got, "test")
	}
}

func TestViperConfigGetInt(t *testing.T) {
	v := viper.New()
	v.Set("port", 8080)
	cfg := New(v)

	if got := cfg.GetInt("port"); got != 8080 {
		t.Errorf("GetInt('port') = %d, want %d", got, 8080)
	}
}

func TestViperConfigGetBool(t *testing.T) {
	v := viper.New()
	v.Set("enabled", true)
	cfg := New(v)

	if got := cfg.GetBool("enabled"); !got {
		t.Error("GetBool('enabled') = false, want true")
	}
}

func TestViperConfigGetDuration(t *testing.T) {
	v := viper.New()
	v.Set("timeout", "5s")
	cfg := New(v)

	want := 5 * time.Second
	if got := cfg.GetDuration("timeout"); got != want {
		t.Errorf("GetDuration('timeout') = %v, want %v", got, want)
	}
}

func TestViperConfigIsSet(t *testing.T) {
	v := viper.New()
	v.Set("exists", true)
	cfg := New(v)

	if !cfg.IsSet("exists") {
		t.Error("IsSet('exists') = false, want true")
	}
	if cfg.IsSet("missing") {
		t.Error("IsSet('missing') = true, want false")
	}
}

func TestViperConfigSub(t *testing.T) {
	v := viper.New()
	v.Set("tables.molecules.endpoint", "/api/molecules")
	v.Set("tables.molecules.page_size", 30)
	cfg := New(v)

	sub := cfg.Sub("tables.molecules")
	if sub == nil {
		t.Fatal("Sub('tables.molecules') = nil")
	}
	if got := sub.GetString("endpoint"); got != "/api/molecules" {
		t.Errorf("sub.GetString('endpoint') = %q, want %q", got, "/api/molecules")
	}
	if got := sub.GetInt("page_size"); got != 30 {
		t.Errorf("sub.GetInt('page_size') = %d, want %d", got, 30)
	}
}

func TestViperConfigSubMissing(t *testing.T) {
	v := viper.New()
	cfg := New(v)

	sub := cfg.Sub("nonexistent")
	if sub == nil {
		t.Fatal("Sub('nonexistent') should return empty Config, not nil")
	}
	if got := sub.GetString("anything"); got != "" {
		t.Errorf("empty config GetString() = %q, want empty", got)
	}
}

func TestViperConfigUnmarshal(t *testing.T) {
	v := viper.New()
	v.Set("base_url", "http://localhost:8000")
	v.Set("page_size", 25)
	cfg := New(v)

	var target struct {
		BaseURL  string `mapstructure:"base_url"`
		PageSize int    `mapstructure:"page_size"`
	}
	if err := cfg.Unmarshal(&target); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if target.BaseURL != "http://localhost:8000" {
		t.Errorf("BaseURL = %q, want %q", target.BaseURL, "http://localhost:8000")
	}
	if target.PageSize != 25 {
		t.Errorf("PageSize = %d, want %d", target.PageSize, 25)
	}
}

func TestNilViper(t *testing.T) {
	cfg := New(nil)
	// Should not panic and return zero values.
	if got := cfg.GetString("key"); got != "" {
		t.Errorf("nil viper GetString() = %q, want empty", got)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("Load(missing explicit file) error = nil, cfg = %v", cfg)
	}

	t.Chdir(t.TempDir())
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	app, err := cfg.App()
	if err != nil {
		t.Fatalf("App() error = %v", err)
	}
	if app.View.PageSize != 10 {
		t.Errorf("View.PageSize = %d, want 10", app.View.PageSize)
	}
	if app.View.QuietInterval != time.Second {
		t.Errorf("View.QuietInterval = %v, want 1s", app.View.QuietInterval)
	}
	if app.Push.Transport != TransportNone {
		t.Errorf("Push.Transport = %q, want %q", app.Push.Transport, TransportNone)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omicsview.yaml")
	body := `
server:
  base_url: http://api.test
view:
  page_size: 25
  quiet_interval: 300ms
tables:
  biomarkers:
    endpoint: /api/v2/biomarkers
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OMICSVIEW_VIEW_PAGE_SIZE", "50")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	app, err := cfg.App()
	if err != nil {
		t.Fatalf("App() error = %v", err)
	}
	if app.Server.BaseURL != "http://api.test" {
		t.Errorf("Server.BaseURL = %q", app.Server.BaseURL)
	}
	if app.View.PageSize != 50 {
		t.Errorf("View.PageSize = %d, want env override 50", app.View.PageSize)
	}
	if app.View.QuietInterval != 300*time.Millisecond {
		t.Errorf("View.QuietInterval = %v, want 300ms", app.View.QuietInterval)
	}
	if got := app.Table("biomarkers").Endpoint; got != "/api/v2/biomarkers" {
		t.Errorf("Table(biomarkers).Endpoint = %q", got)
	}
	if got := app.Table("unknown").Endpoint; got != "" {
		t.Errorf("Table(unknown).Endpoint = %q, want empty", got)
	}
}

func TestAppValidate(t *testing.T) {
	valid := func() App {
		return App{
			Server: ServerConfig{BaseURL: "http://api.test"},
			View:   ViewConfig{PageSize: 10},
			Push:   PushConfig{Transport: TransportNone},
		}
	}
	tests := []struct {
		name    string
		mutate  func(*App)
		wantErr string
	}{
		{name: "valid", mutate: func(*App) {}},
		{name: "missing base url", mutate: func(a *App) { a.Server.BaseURL = "" }, wantErr: "base_url"},
		{name: "zero page size", mutate: func(a *App) { a.View.PageSize = 0 }, wantErr: "page_size"},
		{name: "websocket without url", mutate: func(a *App) { a.Push.Transport = TransportWebSocket }, wantErr: "push.url"},
		{name: "mqtt with url", mutate: func(a *App) { a.Push.Transport = TransportMQTT; a.Push.URL = "tcp://broker:1883" }},
		{name: "unknown transport", mutate: func(a *App) { a.Push.Transport = "carrier-pigeon" }, wantErr: "unknown push.transport"},
		{name: "negative rate", mutate: func(a *App) { a.Server.RequestRate = -1 }, wantErr: "request_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := valid()
			tt.mutate(&app)
			err := app.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
