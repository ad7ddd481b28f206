package spinner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewSpinner(t *testing.T) {
	var buf bytes.Buffer
	spinner := New(context.Background(), &buf, "Loading datasets")

	if spinner.message != "Loading datasets" {
		t.Errorf("message = %q, want %q", spinner.message, "Loading datasets")
	}
	if len(spinner.frames) != 6 {
		t.Errorf("len(frames) = %d, want 6", len(spinner.frames))
	}
	if spinner.IsActive() {
		t.Error("new spinner is active")
	}
}

func TestSpinnerStep(t *testing.T) {
	var buf bytes.Buffer
	spinner := New(context.Background(), &buf, "")

	spinner.Step("Normalizing texts")
	if !spinner.IsActive() {
		t.Fatal("Step() did not start the spinner")
	}
	time.Sleep(150 * time.Millisecond)

	spinner.Step("Fitting TF-IDF")
	time.Sleep(150 * time.Millisecond)
	spinner.Done()

	if spinner.IsActive() {
		t.Error("spinner active after Done()")
	}

	output := buf.String()
	for _, want := range []string{"Normalizing texts", "Fitting TF-IDF", "(0s)"} {
		if !strings.Contains(output, want) {
			t.Errorf("output %q does not contain %q", output, want)
		}
	}
	// non-terminal output ends with a bare carriage return
	if !strings.HasSuffix(output, "\r") {
		t.Error("output does not end with carriage return")
	}
}

func TestSpinnerStartStopIdempotent(t *testing.T) {
	var buf bytes.Buffer
	spinner := New(context.Background(), &buf, "Training")

	// stop without starting
	spinner.Stop()
	if spinner.IsActive() {
		t.Error("active after Stop() without Start()")
	}

	spinner.Start()
	spinner.Start()
	if !spinner.IsActive() {
		t.Error("not active after double Start()")
	}

	spinner.Stop()
	spinner.Stop()
	if spinner.IsActive() {
		t.Error("active after double Stop()")
	}

	// a stopped spinner stays stopped
	spinner.Start()
	if spinner.IsActive() {
		t.Error("stopped spinner restarted")
	}
}

func TestSpinnerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	spinner := New(ctx, &buf, "Training")
	spinner.Step("Training")
	if spinner.IsActive() {
		t.Error("spinner started with a cancelled context")
	}
}

func TestUpdateMessageResetsElapsed(t *testing.T) {
	spinner := New(context.Background(), &bytes.Buffer{}, "first")
	before := spinner.since

	time.Sleep(5 * time.Millisecond)
	spinner.UpdateMessage("second")

	if spinner.message != "second" {
		t.Errorf("message = %q, want %q", spinner.message, "second")
	}
	if !spinner.since.After(before) {
		t.Error("UpdateMessage() did not reset the elapsed timer")
	}
}

func TestForWriter(t *testing.T) {
	ctx := context.Background()

	if _, ok := ForWriter(ctx, &bytes.Buffer{}).(Nop); !ok {
		t.Error("ForWriter(buffer) is not Nop")
	}

	f, err := os.Create(filepath.Join(t.TempDir(), "progress.log"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, ok := ForWriter(ctx, f).(Nop); !ok {
		t.Error("ForWriter(regular file) is not Nop")
	}
}

func TestNop(t *testing.T) {
	var r Reporter = Nop{}
	r.Step("anything")
	r.Done()
}
