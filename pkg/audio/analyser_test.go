package audio_test

import (
	"sync"
	"testing"

	"github.com/MrWong99/miniexplorer/pkg/audio"
)

func TestAnalyser_PartialWindow(t *testing.T) {
	t.Parallel()

	a := audio.NewAnalyser(4)
	a.Write([]float32{1, 2})
	got := a.Window()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Window = %v, want [1 2]", got)
	}
}

func TestAnalyser_WrapsInOrder(t *testing.T) {
	t.Parallel()

	a := audio.NewAnalyser(4)
	a.Write([]float32{1, 2, 3})
	a.Write([]float32{4, 5, 6})
	got := a.Window()
	want := []float32{3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAnalyser_OversizedWriteKeepsTail(t *testing.T) {
	t.Parallel()

	a := audio.NewAnalyser(3)
	a.Write([]float32{1, 2, 3, 4, 5})
	a.Write([]float32{6})
	got := a.Window()
	want := []float32{4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAnalyser_Level(t *testing.T) {
	t.Parallel()

	a := audio.NewAnalyser(0)
	if lvl := a.Level(); lvl != 0 {
		t.Errorf("empty Level = %v, want 0", lvl)
	}
	a.Write([]float32{0.5, -0.5})
	if lvl := a.Level(); lvl != 0.5 {
		t.Errorf("Level = %v, want 0.5", lvl)
	}
}

func TestAnalyser_CloseIgnoresWrites(t *testing.T) {
	t.Parallel()

	a := audio.NewAnalyser(4)
	a.Write([]float32{1})
	a.Close()
	a.Write([]float32{2})
	if got := a.Window(); len(got) != 0 {
		t.Errorf("Window after Close = %v, want empty", got)
	}
}

func TestAnalyser_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	a := audio.NewAnalyser(256)
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 100 {
				a.Write(make([]float32, 64))
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				_ = a.Level()
			}
		}()
	}
	wg.Wait()
}
