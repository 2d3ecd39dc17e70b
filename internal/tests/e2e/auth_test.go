//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vsmm-world/userapi/config"
	"github.com/vsmm-world/userapi/internal/db"
	"github.com/vsmm-world/userapi/internal/server"
	"go.uber.org/zap"
)

const (
	serverPort = 18080
)

var (
	baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

	testConfig config.Config
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d", "mongo"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	setEnv()
	cfg := config.LoadConfig()
	testConfig = cfg

	if err := waitForMongo(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "mongo not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = dockerCompose(context.Background(), root, "down")
	}

	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		shutdown()
		os.Exit(1)
	}

	code := m.Run()

	shutdown()
	os.Exit(code)
}

func TestRegisterAndMe(t *testing.T) {
	email := uniqueEmail("ann")

	status, env, err := call(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Ann Lee",
		"email":    email,
		"password": "Abcdef1",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if status != http.StatusCreated {
		t.Fatalf("register status %d: %s", status, env.Error.Message)
	}

	var reg struct {
		Token string `json:"token"`
		User  struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(env.Data, &reg); err != nil {
		t.Fatalf("decode register: %v", err)
	}
	if reg.Token == "" {
		t.Fatalf("missing token in register response")
	}

	status, env, err = call(http.MethodGet, "/api/auth/me", reg.Token, nil)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("me status %d: %s", status, env.Error.Message)
	}
	var me struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(env.Data, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.User.Email != email || me.User.ID != reg.User.ID {
		t.Fatalf("unexpected user: %+v", me.User)
	}

	status, _, err = call(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Ann Again",
		"email":    email,
		"password": "Abcdef1",
	})
	if err != nil {
		t.Fatalf("register duplicate: %v", err)
	}
	if status != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate email, got %d", status)
	}
}

func TestLoginLockout(t *testing.T) {
	email := uniqueEmail("lock")
	status, _, err := call(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Lock Test",
		"email":    email,
		"password": "Abcdef1",
	})
	if err != nil || status != http.StatusCreated {
		t.Fatalf("register: status %d err %v", status, err)
	}

	wrong := map[string]string{"email": email, "password": "Wrong123"}
	for i := 1; i <= 4; i++ {
		status, env, err := call(http.MethodPost, "/api/auth/login", "", wrong)
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		if status != http.StatusUnauthorized {
			t.Fatalf("login %d: expected 401, got %d (%s)", i, status, env.Error.Message)
		}
	}

	status, env, err := call(http.MethodPost, "/api/auth/login", "", wrong)
	if err != nil {
		t.Fatalf("login 5: %v", err)
	}
	if status != http.StatusForbidden || !strings.Contains(env.Error.Message, "temporarily locked") {
		t.Fatalf("login 5: expected 403 locked, got %d (%s)", status, env.Error.Message)
	}

	status, _, err = call(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": "Abcdef1"})
	if err != nil {
		t.Fatalf("login 6: %v", err)
	}
	if status != http.StatusForbidden {
		t.Fatalf("login 6: expected 403 while locked, got %d", status)
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

func call(method, path, token string, payload any) (int, envelope, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, envelope{}, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		return 0, envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, envelope{}, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return resp.StatusCode, envelope{}, err
	}
	return resp.StatusCode, env, nil
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s_%d@example.com", prefix, time.Now().UnixNano())
}

func setEnv() {
	_ = os.Setenv("ENV", "production")
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_DRIVER", "mongo")
	_ = os.Setenv("MONGODB_URI", "mongodb://localhost:27017/userapi_e2e")
	_ = os.Setenv("BCRYPT_COST", "12")
	_ = os.Setenv("RATE_LIMIT_ENABLED", "false")
	_ = os.Setenv("MQ_BACKEND", "none")
}

func waitForMongo(ctx context.Context, cfg config.Config) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		client, _, err := db.OpenMongo(pingCtx, cfg.Mongo)
		cancel()
		if err == nil {
			_ = client.Disconnect(context.Background())
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("mongo ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func startServer(cfg config.Config) (*server.Server, error) {
	srv, err := server.New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
