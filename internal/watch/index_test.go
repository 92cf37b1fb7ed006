package watch

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

type firing struct {
	root      string
	path      string
	recursive bool
}

func record(got *[]firing) Callback {
	return func(root, path string, recursive bool) {
		*got = append(*got, firing{root, path, recursive})
	}
}

func mkdirAll(t *testing.T, path string) string {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestAddWatchFileUsesParent verifies a file target registers its
// containing directory as the root.
func TestAddWatchFileUsesParent(t *testing.T) {
	base := canonical(t, t.TempDir())
	file := filepath.Join(base, "crankd.yaml")
	if err := os.WriteFile(file, []byte("paths: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ix := NewIndex()
	root, err := ix.AddWatch(file, func(string, string, bool) {})
	if err != nil {
		t.Fatalf("AddWatch failed: %v", err)
	}
	if root != base {
		t.Errorf("root = %q, want parent directory %q", root, base)
	}
}

// TestAddWatchMissingPath verifies registration fails fatally for
// targets that do not exist.
func TestAddWatchMissingPath(t *testing.T) {
	ix := NewIndex()
	_, err := ix.AddWatch(filepath.Join(t.TempDir(), "absent"), func(string, string, bool) {})
	if !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("error = %v, want ErrPathNotFound", err)
	}
}

// TestDispatchPrefixLaw verifies every covering root fires and no
// non-covering root does, with the changed path reduced to its
// directory.
func TestDispatchPrefixLaw(t *testing.T) {
	base := canonical(t, t.TempDir())
	a := mkdirAll(t, filepath.Join(base, "a"))
	ab := mkdirAll(t, filepath.Join(base, "a", "b"))
	z := mkdirAll(t, filepath.Join(base, "z"))
	mkdirAll(t, filepath.Join(base, "ab"))

	ix := NewIndex()
	var gotA, gotAB, gotZ []firing
	for _, reg := range []struct {
		path string
		got  *[]firing
	}{{a, &gotA}, {ab, &gotAB}, {z, &gotZ}} {
		if _, err := ix.AddWatch(reg.path, record(reg.got)); err != nil {
			t.Fatalf("AddWatch(%s) failed: %v", reg.path, err)
		}
	}

	fired := ix.Dispatch(filepath.Join(ab, "c.txt"), false)
	if fired != 2 {
		t.Errorf("fired %d callbacks, want 2", fired)
	}
	want := firing{root: a, path: ab, recursive: false}
	if len(gotA) != 1 || gotA[0] != want {
		t.Errorf("root a saw %+v, want [%+v]", gotA, want)
	}
	want = firing{root: ab, path: ab, recursive: false}
	if len(gotAB) != 1 || gotAB[0] != want {
		t.Errorf("root a/b saw %+v, want [%+v]", gotAB, want)
	}
	if len(gotZ) != 0 {
		t.Errorf("unrelated root fired: %+v", gotZ)
	}

	// A sibling sharing the name as a string prefix must not match.
	if fired := ix.Dispatch(filepath.Join(base, "ab", "x.txt"), false); fired != 0 {
		t.Errorf("string-prefix sibling fired %d callbacks, want 0", fired)
	}
}

// TestDispatchChangeInRootItself verifies a file directly inside a root
// matches that root with path equal to it.
func TestDispatchChangeInRootItself(t *testing.T) {
	base := canonical(t, t.TempDir())
	watched := mkdirAll(t, filepath.Join(base, "watched"))

	ix := NewIndex()
	var got []firing
	if _, err := ix.AddWatch(watched, record(&got)); err != nil {
		t.Fatal(err)
	}

	ix.Dispatch(filepath.Join(watched, "x.txt"), false)
	if len(got) != 1 || got[0].path != watched || got[0].root != watched {
		t.Errorf("got %+v, want one firing with root and path %q", got, watched)
	}
}

// TestDispatchRegistrationOrder verifies callbacks on one root fire in
// the order they were added.
func TestDispatchRegistrationOrder(t *testing.T) {
	base := canonical(t, t.TempDir())

	ix := NewIndex()
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		if _, err := ix.AddWatch(base, func(string, string, bool) {
			order = append(order, i)
		}); err != nil {
			t.Fatal(err)
		}
	}

	ix.Dispatch(filepath.Join(base, "x"), false)
	if !reflect.DeepEqual(order, []int{1, 2, 3}) {
		t.Errorf("callback order = %v, want [1 2 3]", order)
	}
}

// TestDispatchRecursivePassthrough verifies the recursive flag reaches
// callbacks unchanged.
func TestDispatchRecursivePassthrough(t *testing.T) {
	base := canonical(t, t.TempDir())

	ix := NewIndex()
	var got []firing
	if _, err := ix.AddWatch(base, record(&got)); err != nil {
		t.Fatal(err)
	}

	ix.Dispatch(filepath.Join(base, "x"), true)
	ix.Dispatch(filepath.Join(base, "x"), false)
	if len(got) != 2 || !got[0].recursive || got[1].recursive {
		t.Errorf("recursive flags = %+v, want [true false]", got)
	}
}

// TestRoots verifies sorted root listing.
func TestRoots(t *testing.T) {
	base := canonical(t, t.TempDir())
	b := mkdirAll(t, filepath.Join(base, "b"))
	a := mkdirAll(t, filepath.Join(base, "a"))

	ix := NewIndex()
	for _, p := range []string{b, a} {
		if _, err := ix.AddWatch(p, func(string, string, bool) {}); err != nil {
			t.Fatal(err)
		}
	}

	if got := ix.Roots(); !reflect.DeepEqual(got, []string{a, b}) {
		t.Errorf("Roots() = %v, want [%s %s]", got, a, b)
	}
}
