package optimization

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestLoopStateAppend(t *testing.T) {
	s := NewLoopState()
	if s.Len() != 0 {
		t.Fatalf("fresh state has %d rows", s.Len())
	}

	if err := s.Append([][]float64{{1, 2}, {3, 4}}, [][]float64{{5}, {25}}); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 {
		t.Fatalf("got %d rows, want 2", s.Len())
	}
	xw, yw := s.Widths()
	if xw != 2 || yw != 1 {
		t.Fatalf("widths (%d, %d), want (2, 1)", xw, yw)
	}

	// An empty batch is a no-op.
	if err := s.Append(nil, nil); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 {
		t.Fatalf("empty append changed length to %d", s.Len())
	}
}

// A rejected batch must leave the state untouched.
func TestLoopStateAppendValidation(t *testing.T) {
	s := NewLoopState()
	if err := s.Append([][]float64{{1, 2}}, [][]float64{{1}}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		X, Y [][]float64
	}{
		{name: "row count mismatch", X: [][]float64{{1, 2}}, Y: nil},
		{name: "input width mismatch", X: [][]float64{{1, 2, 3}}, Y: [][]float64{{1}}},
		{name: "output width mismatch", X: [][]float64{{1, 2}}, Y: [][]float64{{1, 2}}},
		{name: "ragged batch", X: [][]float64{{1, 2}, {3}}, Y: [][]float64{{1}, {2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Append(tt.X, tt.Y); KindOf(err) != KindDimensionMismatch {
				t.Fatalf("got %v, want a dimension mismatch", err)
			}
			if s.Len() != 1 {
				t.Fatalf("rejected batch changed length to %d", s.Len())
			}
		})
	}

	empty := NewLoopState()
	if err := empty.Append([][]float64{{}}, [][]float64{{}}); KindOf(err) != KindDimensionMismatch {
		t.Fatalf("empty rows: got %v", err)
	}
}

func TestLoopStateCopies(t *testing.T) {
	s := NewLoopState()
	x := [][]float64{{1, 2}}
	y := [][]float64{{3}}
	if err := s.Append(x, y); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's rows must not reach the record.
	x[0][0] = 99
	y[0][0] = 99

	X, Y := s.Snapshot()
	assertFloat64SlicesEqual(t, X[0], []float64{1, 2}, 0)
	assertFloat64SlicesEqual(t, Y[0], []float64{3}, 0)

	// Neither must mutating a snapshot.
	X[0][0] = -1
	X2, _ := s.Snapshot()
	assertFloat64SlicesEqual(t, X2[0], []float64{1, 2}, 0)
}

func TestLoopStateMatrices(t *testing.T) {
	s := NewLoopState()
	if X, Y := s.Matrices(); X != nil || Y != nil {
		t.Fatal("empty state should yield nil matrices")
	}

	if err := s.Append([][]float64{{1, 2}, {3, 4}}, [][]float64{{5}, {25}}); err != nil {
		t.Fatal(err)
	}
	X, Y := s.Matrices()
	if r, c := X.Dims(); r != 2 || c != 2 {
		t.Fatalf("X dims (%d, %d), want (2, 2)", r, c)
	}
	if r, c := Y.Dims(); r != 2 || c != 1 {
		t.Fatalf("Y dims (%d, %d), want (2, 1)", r, c)
	}
	if X.At(1, 0) != 3 || Y.At(1, 0) != 25 {
		t.Fatalf("matrix values off: X(1,0)=%v, Y(1,0)=%v", X.At(1, 0), Y.At(1, 0))
	}
}

func TestLoopStateBest(t *testing.T) {
	s := NewLoopState()
	if _, ok := s.Best(); ok {
		t.Fatal("empty state returned a best")
	}

	err := s.Append(
		[][]float64{{1, 1}, {0.2, 0.1}, {2, 2}},
		[][]float64{{2}, {0.05}, {8}},
	)
	if err != nil {
		t.Fatal(err)
	}

	sol, ok := s.Best()
	if !ok {
		t.Fatal("no best on a populated state")
	}
	if sol.Value != 0.05 {
		t.Fatalf("best value %v, want 0.05", sol.Value)
	}
	assertFloat64SlicesEqual(t, sol.Parameters, []float64{0.2, 0.1}, 0)
}

func TestLoopStateJSON(t *testing.T) {
	s, err := NewLoopStateFrom(
		[][]float64{{1, 2}, {3, 4}},
		[][]float64{{5}, {25}},
	)
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}

	// The wire form is an ordered list of (x, y) pairs.
	var doc struct {
		Evaluations []struct {
			X []float64 `json:"x"`
			Y []float64 `json:"y"`
		} `json:"evaluations"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Evaluations) != 2 {
		t.Fatalf("got %d pairs, want 2", len(doc.Evaluations))
	}
	assertFloat64SlicesEqual(t, doc.Evaluations[1].X, []float64{3, 4}, 0)
	assertFloat64SlicesEqual(t, doc.Evaluations[1].Y, []float64{25}, 0)

	restored := NewLoopState()
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatal(err)
	}
	if restored.Len() != 2 {
		t.Fatalf("restored %d rows, want 2", restored.Len())
	}
	X, Y := restored.Snapshot()
	assertFloat64SlicesEqual(t, X[0], []float64{1, 2}, 0)
	assertFloat64SlicesEqual(t, Y[0], []float64{5}, 0)
}

func TestLoopStateSaveLoad(t *testing.T) {
	s, err := NewLoopStateFrom(
		[][]float64{{1, 2}, {3, 4}, {5, 6}},
		[][]float64{{5}, {25}, {61}},
	)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "state.json")
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadLoopState(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 3 {
		t.Fatalf("loaded %d rows, want 3", loaded.Len())
	}
	X, Y := loaded.Snapshot()
	wantX, wantY := s.Snapshot()
	for i := range X {
		assertFloat64SlicesEqual(t, X[i], wantX[i], 0)
		assertFloat64SlicesEqual(t, Y[i], wantY[i], 0)
	}

	// The atomic write must not leave temporary files behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("directory holds %d entries, want just the state file", len(entries))
	}

	if _, err := LoadLoopState(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("loading a missing file should fail")
	}
}

// One writer, many readers: every snapshot taken while batches are
// being committed must pair inputs with their outputs.
func TestLoopStateConcurrentReaders(t *testing.T) {
	s := NewLoopState()

	const batches = 50
	var wg sync.WaitGroup
	stopReads := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stopReads:
					return
				default:
				}
				X, Y := s.Snapshot()
				if len(X) != len(Y) {
					t.Error("snapshot with unpaired rows")
					return
				}
				for i := range X {
					if want := X[i][0] * X[i][0]; Y[i][0] != want {
						t.Errorf("row %d: y=%v for x=%v", i, Y[i][0], X[i][0])
						return
					}
				}
				if _, ok := s.Best(); !ok && len(X) > 0 {
					t.Error("best vanished for a non-empty state")
					return
				}
			}
		}()
	}

	for i := 0; i < batches; i++ {
		v := float64(i)
		if err := s.Append([][]float64{{v}}, [][]float64{{v * v}}); err != nil {
			t.Fatal(err)
		}
	}
	close(stopReads)
	wg.Wait()

	if s.Len() != batches {
		t.Fatalf("got %d rows, want %d", s.Len(), batches)
	}
}
