package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type stubGen struct {
	output string
	err    error
	calls  int
	prompt string
}

func (s *stubGen) Generate(ctx context.Context, prompt string, payload string) (string, error) {
	s.calls++
	s.prompt = prompt
	return s.output, s.err
}

func TestRunSuccess(t *testing.T) {
	gen := &stubGen{output: "an analogy about rivers"}
	a := New("contentAnalysis", "analyze this", 250, time.Minute, gen)

	res := a.Run(context.Background(), "input text")

	if !res.Processed {
		t.Fatal("expected processed result")
	}
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.Output != "an analogy about rivers" {
		t.Errorf("unexpected output %q", res.Output)
	}
	if res.TruncatedOutput != res.Output {
		t.Errorf("short output should not be truncated")
	}
	if res.Stage != "contentAnalysis" {
		t.Errorf("expected stage name on result, got %q", res.Stage)
	}
	if gen.prompt != "analyze this" {
		t.Errorf("expected prompt passed through, got %q", gen.prompt)
	}
}

func TestRunGeneratorFailureIsCaptured(t *testing.T) {
	gen := &stubGen{err: errors.New("rate limited")}
	a := New("explanation", "p", 250, time.Minute, gen)

	res := a.Run(context.Background(), "input")

	if res.Processed {
		t.Fatal("expected unprocessed result")
	}
	if !strings.Contains(res.Error, "rate limited") {
		t.Errorf("expected underlying error in result, got %q", res.Error)
	}
	if res.Output != "" {
		t.Errorf("failed run must not carry output, got %q", res.Output)
	}
}

func TestRunEmptyResponseIsError(t *testing.T) {
	a := New("explanation", "p", 250, time.Minute, &stubGen{output: ""})

	res := a.Run(context.Background(), "input")
	if res.Processed {
		t.Fatal("empty response must not count as processed")
	}
	if !strings.Contains(res.Error, "empty response") {
		t.Errorf("unexpected error %q", res.Error)
	}
}

func TestProcessedIffNoError(t *testing.T) {
	cases := []struct {
		name string
		gen  *stubGen
	}{
		{"success", &stubGen{output: "ok"}},
		{"failure", &stubGen{err: errors.New("boom")}},
		{"empty", &stubGen{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := New("s", "p", 250, time.Minute, tc.gen)
			res := a.Run(context.Background(), "x")
			if res.Processed != (res.Error == "") {
				t.Errorf("invariant violated: processed=%v error=%q", res.Processed, res.Error)
			}
		})
	}
}

func TestStatusTracksCounts(t *testing.T) {
	gen := &stubGen{output: "ok"}
	a := New("s", "p", 250, time.Minute, gen)

	a.Run(context.Background(), "x")
	gen.output, gen.err = "", errors.New("boom")
	a.Run(context.Background(), "x")

	st := a.Status()
	if st.Processed != 1 || st.Errors != 1 {
		t.Errorf("expected 1 processed / 1 error, got %d/%d", st.Processed, st.Errors)
	}
	if !strings.Contains(st.LastError, "boom") {
		t.Errorf("expected last error recorded, got %q", st.LastError)
	}

	a.Reset()
	st = a.Status()
	if st.Processed != 0 || st.Errors != 0 || st.LastError != "" {
		t.Errorf("expected cleared status after reset, got %+v", st)
	}
}

func TestCloneDoesNotAliasOriginal(t *testing.T) {
	orig := &StageResult{Stage: "s", Processed: true, Output: "original"}
	c := orig.Clone()
	c.Output = "edited"
	if orig.Output != "original" {
		t.Error("clone mutated the original")
	}
}

func TestTruncate(t *testing.T) {
	words := make([]string, 300)
	for i := range words {
		words[i] = "w"
	}
	long := strings.Join(words, " ")

	got := Truncate(long, 250)
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Fatalf("expected truncation marker, got tail %q", got[len(got)-40:])
	}
	kept := strings.Fields(strings.TrimSuffix(got, TruncationMarker))
	if len(kept) != 240 {
		t.Errorf("expected cap-10 = 240 kept words, got %d", len(kept))
	}
}

func TestTruncateShortTextUnchanged(t *testing.T) {
	if got := Truncate("just a few words", 250); got != "just a few words" {
		t.Errorf("short text must pass through, got %q", got)
	}
}

func TestTruncateDeterministic(t *testing.T) {
	long := strings.Repeat("word ", 500)
	if Truncate(long, 250) != Truncate(long, 250) {
		t.Error("truncation must be deterministic")
	}
}
