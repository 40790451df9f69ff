package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestProgressBar_NonTTYPrintsOnlyOnCompletion(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(4, "Measuring build output")
	p.SetWriter(buf)

	p.Increment()
	p.SetCurrent(3)
	if buf.Len() != 0 {
		t.Errorf("non-TTY progress should stay silent until complete, got: %q", buf.String())
	}

	p.Increment()
	output := buf.String()
	if !strings.Contains(output, "100%") {
		t.Errorf("completed progress should show 100%%, got: %q", output)
	}
	if !strings.HasSuffix(output, "Measuring build output\n") {
		t.Errorf("completed progress should end with description, got: %q", output)
	}
}

func TestProgressBar_FinishDoesNotRepeat(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(2, "Done")
	p.SetWriter(buf)

	p.SetCurrent(2)
	p.Finish()

	if n := strings.Count(buf.String(), "100%"); n != 1 {
		t.Errorf("expected a single 100%% line, got %d: %q", n, buf.String())
	}
}

func TestProgressBar_FinishFromPartial(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(10, "Partial")
	p.SetWriter(buf)

	p.SetCurrent(3)
	p.Finish()

	if !strings.Contains(buf.String(), "100%") {
		t.Errorf("Finish() should show 100%%, got: %q", buf.String())
	}
}

func TestProgressBar_OverLimit(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(3, "Capped")
	p.SetWriter(buf)

	p.SetCurrent(20)
	if p.current != 3 {
		t.Errorf("current should be capped at total, got %d", p.current)
	}
	if !strings.Contains(buf.String(), "100%") {
		t.Errorf("progress should cap at 100%%, got: %q", buf.String())
	}
}

func TestProgressBar_ZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(0, "Empty")
	p.SetWriter(buf)

	// must not divide by zero
	p.Increment()
	if !strings.Contains(buf.String(), "[") {
		t.Errorf("zero-total progress should still render, got: %q", buf.String())
	}
}

func TestProgressBar_Concurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(100, "Concurrent")
	p.SetWriter(buf)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				p.Increment()
			}
		}()
	}
	wg.Wait()

	if p.current != 100 {
		t.Errorf("expected current = 100, got %d", p.current)
	}
}

func TestSpinner_NonTTYPrintsOnce(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner("Rendering report")
	s.SetWriter(buf)

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()

	if got := buf.String(); got != "Rendering report...\n" {
		t.Errorf("non-TTY spinner output = %q, want single message line", got)
	}
}

func TestSpinner_StopWithMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner("Working").WithElapsed()
	s.SetWriter(buf)

	s.Start()
	s.StopWithMessage("Report written")

	if !strings.HasSuffix(buf.String(), "Report written\n") {
		t.Errorf("StopWithMessage() output = %q", buf.String())
	}
}

func TestSpinner_FormatMessage(t *testing.T) {
	s := NewSpinner("Working")
	if got := s.formatMessage(); got != "Working" {
		t.Errorf("formatMessage() = %q, want %q", got, "Working")
	}

	s.WithElapsed()
	if got := s.formatMessage(); !strings.Contains(got, "elapsed") {
		t.Errorf("formatMessage() with elapsed = %q", got)
	}
}

func BenchmarkProgressBar_Render(b *testing.B) {
	p := NewProgress(100, "Benchmark")
	p.SetWriter(&bytes.Buffer{})
	p.current = 50

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.render()
	}
}
