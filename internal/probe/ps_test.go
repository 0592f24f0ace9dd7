package probe

import (
	"context"
	"errors"
	"testing"
)

func fakeRun(out string, err error) func(context.Context, string, ...string) ([]byte, error) {
	return func(context.Context, string, ...string) ([]byte, error) {
		return []byte(out), err
	}
}

func TestPSIsRunning(t *testing.T) {
	out := `    1 /sbin/launchd
  412 /usr/libexec/logd
 9001 /Applications/Wallet.app/Contents/Resources/bin/darwin/btcd
 9002 Google Chrome Helper
`
	p := &PS{goos: "darwin", run: fakeRun(out, nil)}

	info, found, err := p.IsRunning(context.Background(), "btcd")
	if err != nil {
		t.Fatalf("IsRunning: %v", err)
	}
	if !found || info.PID != 9001 {
		t.Errorf("btcd: found=%v pid=%d, want found pid 9001", found, info.PID)
	}

	_, found, err = p.IsRunning(context.Background(), "lnd")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("lnd should not be found")
	}
}

func TestPSTasklist(t *testing.T) {
	out := "\"System Idle Process\",\"0\",\"Services\",\"0\",\"8 K\"\r\n" +
		"\"lnd.exe\",\"4242\",\"Console\",\"1\",\"52,112 K\"\r\n"
	p := &PS{goos: "windows", run: fakeRun(out, nil)}

	info, found, err := p.IsRunning(context.Background(), "lnd")
	if err != nil {
		t.Fatalf("IsRunning: %v", err)
	}
	if !found || info.PID != 4242 {
		t.Errorf("lnd: found=%v pid=%d, want found pid 4242", found, info.PID)
	}
}

func TestPSCommandFailure(t *testing.T) {
	p := &PS{goos: "darwin", run: fakeRun("", errors.New("exec: \"ps\": not found"))}

	_, found, err := p.IsRunning(context.Background(), "lnd")
	if err == nil {
		t.Fatal("expected error when ps cannot run")
	}
	if found {
		t.Error("found should be false on error")
	}
}

func TestCommandMatches(t *testing.T) {
	tests := []struct {
		command, name string
		want          bool
	}{
		{"lnd", "lnd", true},
		{"/usr/local/bin/lnd", "lnd", true},
		{`C:\wallet\bin\windows\LND.EXE`, "lnd", true},
		{"lndcli", "lnd", false},
		{"btcd", "lnd", false},
	}
	for _, tt := range tests {
		if got := commandMatches(tt.command, tt.name); got != tt.want {
			t.Errorf("commandMatches(%q, %q) = %v, want %v", tt.command, tt.name, got, tt.want)
		}
	}
}
