package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard configuration",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "testuser",
				Password: "testpass",
				Database: "testdb",
				SSLMode:  "disable",
			},
			want: "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable",
		},
		{
			name: "production configuration",
			cfg: DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				User:     "produser",
				Password: "securepass123",
				Database: "proddb",
				SSLMode:  "require",
			},
			want: "host=db.example.com port=5433 user=produser password=securepass123 dbname=proddb sslmode=require",
		},
		{
			name: "IPv6 host",
			cfg: DatabaseConfig{
				Host:     "::1",
				Port:     5432,
				User:     "user",
				Password: "pass",
				Database: "db",
				SSLMode:  "disable",
			},
			want: "host=::1 port=5432 user=user password=pass dbname=db sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ConnectionString(); got != tt.want {
				t.Errorf("DatabaseConfig.ConnectionString() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInitConfig(t *testing.T) {
	// Save original working directory
	originalWd, _ := os.Getwd()
	defer os.Chdir(originalWd)

	tests := []struct {
		name    string
		env     string
		wantErr bool
	}{
		{
			name:    "default dev environment",
			env:     "",
			wantErr: false,
		},
		{
			name:    "explicit dev environment",
			env:     "dev",
			wantErr: false,
		},
		{
			name:    "test environment",
			env:     "test",
			wantErr: false,
		},
		{
			name:    "prod environment",
			env:     "prod",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset viper for each test
			viper.Reset()

			err := InitConfig(tt.env)
			if (err != nil) != tt.wantErr {
				t.Errorf("InitConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			// Verify default values are set
			if !tt.wantErr {
				if viper.GetString("SERVER_HOST") != "0.0.0.0" {
					t.Errorf("InitConfig() SERVER_HOST = %v, want 0.0.0.0", viper.GetString("SERVER_HOST"))
				}
				if viper.GetInt("SERVER_PORT") != 8080 {
					t.Errorf("InitConfig() SERVER_PORT = %v, want 8080", viper.GetInt("SERVER_PORT"))
				}
				if viper.GetString("DB_HOST") != "localhost" {
					t.Errorf("InitConfig() DB_HOST = %v, want localhost", viper.GetString("DB_HOST"))
				}
				if viper.GetString("DB_USER") != "bluecore" {
					t.Errorf("InitConfig() DB_USER = %v, want bluecore", viper.GetString("DB_USER"))
				}
				if viper.GetString("VECTOR_METRIC") != "cosine" {
					t.Errorf("InitConfig() VECTOR_METRIC = %v, want cosine", viper.GetString("VECTOR_METRIC"))
				}
				if viper.GetInt("FORECAST_MIN_HISTORY") != 5 {
					t.Errorf("InitConfig() FORECAST_MIN_HISTORY = %v, want 5", viper.GetInt("FORECAST_MIN_HISTORY"))
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setupEnv    func()
		cleanupEnv  func()
		wantErr     bool
		wantErrMsg  string
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "successful load with password",
			setupEnv: func() {
				viper.Reset()
				viper.Set("DB_PASSWORD", "testpassword")
				viper.SetDefault("SERVER_HOST", "0.0.0.0")
				viper.SetDefault("SERVER_PORT", 8080)
				viper.SetDefault("DB_HOST", "localhost")
				viper.SetDefault("DB_PORT", 15432)
				viper.SetDefault("DB_USER", "bluecore")
				viper.SetDefault("DB_NAME", "bluecore_dev")
				viper.SetDefault("DB_SSLMODE", "disable")
				viper.SetDefault("VECTOR_METRIC", "cosine")
				viper.SetDefault("VECTOR_FEATURES", "unit_price, stock_level ,monthly_sales")
			},
			cleanupEnv: func() {
				viper.Reset()
			},
			wantErr: false,
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Server.Host != "0.0.0.0" {
					t.Errorf("Load() Server.Host = %v, want 0.0.0.0", cfg.Server.Host)
				}
				if cfg.Database.Password != "testpassword" {
					t.Errorf("Load() Database.Password = %v, want testpassword", cfg.Database.Password)
				}
				if cfg.Database.Database != "bluecore_dev" {
					t.Errorf("Load() Database.Database = %v, want bluecore_dev", cfg.Database.Database)
				}
				if cfg.Vector.Metric != "cosine" {
					t.Errorf("Load() Vector.Metric = %v, want cosine", cfg.Vector.Metric)
				}
				want := []string{"unit_price", "stock_level", "monthly_sales"}
				if len(cfg.Vector.Features) != len(want) {
					t.Fatalf("Load() Vector.Features = %v, want %v", cfg.Vector.Features, want)
				}
				for i, f := range want {
					if cfg.Vector.Features[i] != f {
						t.Errorf("Load() Vector.Features[%d] = %v, want %v", i, cfg.Vector.Features[i], f)
					}
				}
			},
		},
		{
			name: "missing password",
			setupEnv: func() {
				viper.Reset()
				viper.SetDefault("SERVER_HOST", "0.0.0.0")
				viper.SetDefault("SERVER_PORT", 8080)
			},
			cleanupEnv: func() {
				viper.Reset()
			},
			wantErr:    true,
			wantErrMsg: "DB_PASSWORD is required (set via environment variable or .env file)",
		},
		{
			name: "invalid vector metric",
			setupEnv: func() {
				viper.Reset()
				viper.Set("DB_PASSWORD", "pass123")
				viper.Set("VECTOR_METRIC", "manhattan")
			},
			cleanupEnv: func() {
				viper.Reset()
			},
			wantErr:    true,
			wantErrMsg: `VECTOR_METRIC must be cosine or euclidean, got "manhattan"`,
		},
		{
			name: "empty vector features",
			setupEnv: func() {
				viper.Reset()
				viper.Set("DB_PASSWORD", "pass123")
				viper.Set("VECTOR_METRIC", "cosine")
				viper.Set("VECTOR_FEATURES", " , ")
			},
			cleanupEnv: func() {
				viper.Reset()
			},
			wantErr:    true,
			wantErrMsg: "VECTOR_FEATURES must name at least one record attribute",
		},
		{
			name: "custom narrative config",
			setupEnv: func() {
				viper.Reset()
				viper.Set("DB_PASSWORD", "pass123")
				viper.Set("VECTOR_METRIC", "euclidean")
				viper.Set("VECTOR_FEATURES", "unit_price")
				viper.Set("NARRATIVE_ENABLED", true)
				viper.Set("NARRATIVE_API_KEY", "gsk_test")
				viper.Set("NARRATIVE_MODEL", "llama-3.3-70b-versatile")
			},
			cleanupEnv: func() {
				viper.Reset()
			},
			wantErr: false,
			validateCfg: func(t *testing.T, cfg *Config) {
				if !cfg.Narrative.Enabled {
					t.Error("Load() Narrative.Enabled = false, want true")
				}
				if cfg.Narrative.APIKey != "gsk_test" {
					t.Errorf("Load() Narrative.APIKey = %v, want gsk_test", cfg.Narrative.APIKey)
				}
				if cfg.Narrative.Model != "llama-3.3-70b-versatile" {
					t.Errorf("Load() Narrative.Model = %v, want llama-3.3-70b-versatile", cfg.Narrative.Model)
				}
				if cfg.Vector.Metric != "euclidean" {
					t.Errorf("Load() Vector.Metric = %v, want euclidean", cfg.Vector.Metric)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupEnv()
			defer tt.cleanupEnv()

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if err.Error() != tt.wantErrMsg {
					t.Errorf("Load() error = %v, want %v", err.Error(), tt.wantErrMsg)
				}
				return
			}

			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestFindProjectRoot(t *testing.T) {
	// Save original working directory
	originalWd, _ := os.Getwd()
	defer os.Chdir(originalWd)

	// This test assumes we're running from within the project
	root, err := findProjectRoot()
	if err != nil {
		t.Errorf("findProjectRoot() error = %v, want nil", err)
		return
	}

	// Verify go.mod exists in the returned root
	goModPath := root + "/go.mod"
	if _, err := os.Stat(goModPath); os.IsNotExist(err) {
		t.Errorf("findProjectRoot() returned %v, but go.mod does not exist at %v", root, goModPath)
	}
}

func TestProjectPath(t *testing.T) {
	got, err := ProjectPath("go.mod")
	if err != nil {
		t.Fatalf("ProjectPath() error = %v", err)
	}
	if _, err := os.Stat(got); err != nil {
		t.Errorf("ProjectPath(go.mod) = %v, but stat failed: %v", got, err)
	}
}
