package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/graaaaa/scr-multilauncher/internal/config"
	"github.com/graaaaa/scr-multilauncher/internal/engine"
	"github.com/graaaaa/scr-multilauncher/internal/registry"
	"github.com/graaaaa/scr-multilauncher/internal/store"
)

// stubEngine is a test double for the engine-facing interfaces.
type stubEngine struct {
	snap    engine.Snapshot
	err     error
	applied []config.Config
	killed  int
}

func (s *stubEngine) Snapshot(ctx context.Context) (engine.Snapshot, error) {
	return s.snap, s.err
}

func (s *stubEngine) UpdateConfig(ctx context.Context, cfg config.Config) error {
	s.applied = append(s.applied, cfg)
	return s.err
}

func (s *stubEngine) KillAll(ctx context.Context) ([]string, error) {
	s.killed++
	return nil, s.err
}

func (s *stubEngine) Launch(ctx context.Context, arch string) (engine.LaunchResult, error) {
	return engine.LaunchResult{Arch: arch, PID: 42}, s.err
}

func (s *stubEngine) SaveLogs(ctx context.Context) (engine.SaveResult, error) {
	return engine.SaveResult{}, s.err
}

func (s *stubEngine) ClearLogs(ctx context.Context) error {
	return s.err
}

func TestHealthService(t *testing.T) {
	eng := &stubEngine{snap: engine.Snapshot{
		Target:    "starcraft.exe",
		Processes: []registry.ProcessEntry{{PID: 1}, {PID: 2}},
		Cycles:    7,
	}}
	res, err := HealthService{Version: "1.2.3", Engine: eng}.Handle(context.Background())
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := HealthResult{Status: StatusOK, Version: "1.2.3", Target: "starcraft.exe", Tracked: 2, Cycles: 7}
	if res != want {
		t.Errorf("Handle = %+v, want %+v", res, want)
	}

	eng.err = engine.ErrStopped
	res, err = HealthService{Version: "1.2.3", Engine: eng}.Handle(context.Background())
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Status != StatusDegraded {
		t.Errorf("Status = %q, want %q", res.Status, StatusDegraded)
	}
}

func TestProcessesService_EmptyListIsNotNil(t *testing.T) {
	res, err := ProcessesService{Engine: &stubEngine{}}.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Processes == nil {
		t.Error("Processes should not be nil")
	}
}

func TestLogsService_HistoryDisabled(t *testing.T) {
	svc := &LogsService{Engine: &stubEngine{}}

	if _, err := svc.History(context.Background(), store.LineFilter{}); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("expected ErrHistoryDisabled, got %v", err)
	}

	res, err := svc.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if res.Lines == nil {
		t.Error("Lines should not be nil")
	}
}

func TestControlService_KillAll(t *testing.T) {
	eng := &stubEngine{}
	res, err := ControlService{Engine: eng}.KillAll(context.Background())
	if err != nil {
		t.Fatalf("KillAll: %v", err)
	}
	if eng.killed != 1 {
		t.Errorf("killed = %d, want 1", eng.killed)
	}
	if res.Messages == nil {
		t.Error("Messages should not be nil")
	}
}

func TestConfigService_UpdateSavesAndApplies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.toml")
	eng := &stubEngine{}
	svc := ConfigService{ConfigPath: path, Engine: eng}

	p64 := `D:\StarCraft\x86_64\StarCraft.exe`
	attempts := 1
	resp, err := svc.UpdateConfig(context.Background(), ConfigUpdateRequest{Path64: &p64, MaxInspectAttempts: &attempts})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if !resp.Success || resp.RestartRequired {
		t.Errorf("resp = %+v, want success without restart", resp)
	}

	got, err := svc.GetConfig(context.Background())
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if got.Path64 != p64 || got.MaxInspectAttempts != 1 {
		t.Errorf("GetConfig = %+v", got)
	}
	if len(eng.applied) != 1 || eng.applied[0].Path64 != p64 {
		t.Errorf("applied = %+v", eng.applied)
	}
}

func TestConfigService_PortChangeRequiresRestart(t *testing.T) {
	svc := ConfigService{ConfigPath: filepath.Join(t.TempDir(), "conf.toml")}

	port := 9000
	resp, err := svc.UpdateConfig(context.Background(), ConfigUpdateRequest{APIPort: &port})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if !resp.RestartRequired || resp.NewPort != 9000 {
		t.Errorf("resp = %+v, want restart on port 9000", resp)
	}
}

func TestConfigService_Validation(t *testing.T) {
	svc := ConfigService{ConfigPath: filepath.Join(t.TempDir(), "conf.toml")}

	badPort := 70000
	negative := -1
	empty := ""
	tests := []struct {
		name string
		req  ConfigUpdateRequest
	}{
		{"port", ConfigUpdateRequest{APIPort: &badPort}},
		{"attempts", ConfigUpdateRequest{MaxInspectAttempts: &negative}},
		{"target", ConfigUpdateRequest{TargetExe: &empty}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateConfig(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
