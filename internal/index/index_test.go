package index

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/storage"
)

func testStore(t *testing.T) (*Store, *storage.FS) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewStore(fs), fs
}

func TestMarshal_Canonical(t *testing.T) {
	ix := Index{"b": {"z", "a"}, "A": nil}
	data, err := Marshal(ix)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := "{\n  \"A\": [],\n  \"b\": [\n    \"a\",\n    \"z\"\n  ]\n}\n"
	if string(data) != want {
		t.Errorf("got %q, want %q", data, want)
	}
	if !reflect.DeepEqual(ix["b"], []string{"z", "a"}) {
		t.Error("Marshal must not reorder the caller's slices")
	}
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	data, err := Marshal(Index{"<a&b>": {}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"<a&b>"`)) {
		t.Errorf("names should be written verbatim: %s", data)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s, _ := testStore(t)
	ix := Index{
		"Work":     {"todo", "Meeting Notes"},
		"Personal": {},
		"日記":       {"月曜日"},
	}
	if err := s.Save(ix); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Equal(ix) {
		t.Errorf("round trip = %v, want %v", got, ix)
	}
}

func TestSave_Idempotent(t *testing.T) {
	s, fs := testStore(t)
	ix := Index{"b": {"2", "1"}, "a": {"x"}}
	if err := s.Save(ix); err != nil {
		t.Fatal(err)
	}
	first, _ := fs.Read(".note-index.json")
	if err := s.Save(ix); err != nil {
		t.Fatal(err)
	}
	second, _ := fs.Read(".note-index.json")
	if !bytes.Equal(first, second) {
		t.Errorf("saves differ:\n%s\n%s", first, second)
	}
}

func TestLoad_Missing(t *testing.T) {
	s, _ := testStore(t)
	_, err := s.Load()
	if !errors.Is(err, apperr.ErrIndexMissing) {
		t.Fatalf("err = %v, want ErrIndexMissing", err)
	}
}

func TestLoad_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"not an object":    `["a"]`,
		"numbers in array": `{"a": [1]}`,
		"duplicate notes":  `{"a": ["x", "x"]}`,
		"empty note name":  `{"a": [""]}`,
		"empty notebook":   `{"": []}`,
		"broken json":      `{"a": [`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			s, fs := testStore(t)
			if err := fs.Write(".note-index.json", []byte(body)); err != nil {
				t.Fatal(err)
			}
			_, err := s.Load()
			if !errors.Is(err, apperr.ErrPersistence) {
				t.Fatalf("err = %v, want ErrPersistence", err)
			}
		})
	}
}

func TestStagingHelpers_DoNotMutate(t *testing.T) {
	base := Index{"A": {"n1", "n2"}, "B": {}}
	orig := base.Clone()

	steps := []Index{
		base.WithNotebook("C"),
		base.RenameNotebook("A", "Z"),
		base.WithoutNotebook("B"),
		base.WithNote("B", "n"),
		base.RenameNote("A", "n1", "renamed"),
		base.WithoutNote("A", "n2"),
	}
	if !reflect.DeepEqual(base, orig) {
		t.Fatalf("base mutated: %v", base)
	}

	want := []Index{
		{"A": {"n1", "n2"}, "B": {}, "C": {}},
		{"Z": {"n1", "n2"}, "B": {}},
		{"A": {"n1", "n2"}},
		{"A": {"n1", "n2"}, "B": {"n"}},
		{"A": {"renamed", "n2"}, "B": {}},
		{"A": {"n1"}, "B": {}},
	}
	for i := range steps {
		if !steps[i].Equal(want[i]) {
			t.Errorf("step %d = %v, want %v", i, steps[i], want[i])
		}
	}
}

func TestRenameThenCreateSameName(t *testing.T) {
	ix := Index{"A": {}, "B": {}}
	ix = ix.RenameNotebook("A", "C").WithNotebook("A")
	want := Index{"A": {}, "B": {}, "C": {}}
	if !ix.Equal(want) {
		t.Errorf("got %v, want %v", ix, want)
	}
}
